// Package app wires configuration, CDN access, storage and services into the
// operations exposed by the downgrade-roblox command line.
package app
