// Package release models Roblox builds as published on the setup CDN:
// deploy-history entries, per-version package manifests, the player and
// studio variants with their extraction-root tables, and installed version
// directories. It also defines the error taxonomy shared by every stage of
// the install pipeline.
package release
