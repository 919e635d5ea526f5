// Package installer manages the per-variant directory of installed versions.
//
// An install walks through the stages Idle, ProcessesStopped,
// OldVersionsRemoved, DirectoryPrepared, Extracted, Registered (player only)
// and Complete. Running clients are stopped first, previous version
// directories are deleted with a bounded retry on locked files, and the
// assembled archive is extracted into a hidden staging directory that is
// renamed onto the version directory only after every entry was written.
//
// Operating system calls go through the Integration interface.
package installer
