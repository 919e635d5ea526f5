// Package config defines the settings of downgrade-roblox and helpers to
// load, validate and save them.
//
// Settings are layered: built-in defaults (directories resolved through
// XDG base directories), an optional YAML file, then environment variables
// prefixed with DOWNGRADE_ROBLOX_ (e.g. DOWNGRADE_ROBLOX_REMOVAL_ATTEMPTS).
package config
