// Package platform is the operating system collaborator of the installer:
// it terminates running client processes, registers the roblox URL schemes,
// starts an installed client and recognises file-lock errors.
//
// Registry access exists only on Windows; elsewhere the handler operations
// return ErrUnsupportedOS.
package platform
