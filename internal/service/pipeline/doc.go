// Package pipeline ties the services together: it selects a version from the
// deploy history, resolves its manifest, assembles the archive and installs it.
//
// Every requested variant runs as an isolated pipeline; the failure of one
// never stops the others.
package pipeline
