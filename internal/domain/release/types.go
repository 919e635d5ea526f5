package release

import (
	"slices"
	"time"
)

const (
	// VersionPrefix starts every version hash and every installed version directory name.
	VersionPrefix = "version-"
	// ManifestFormat is the only supported manifest format tag.
	ManifestFormat = "v0"
	// ManifestFilename is appended to "{hash}-" to form the manifest object name.
	ManifestFilename = "rbxPkgManifest.txt"
	// PackageSuffix marks package lines in a manifest.
	PackageSuffix = ".zip"
	// UnknownTimestamp is shown for entries whose date could not be parsed.
	UnknownTimestamp = "unknown"
)

// DeployHistoryEntry is one published build found in the deploy history.
type DeployHistoryEntry struct {
	// Hash is the version hash including the "version-" prefix.
	Hash string
	// Timestamp is the deploy date, zero when the line carried no parsable date.
	Timestamp time.Time
	// RawLine is the deploy history line the entry was taken from.
	RawLine string
}

// HasTimestamp reports whether the deploy date was parsed.
func (e DeployHistoryEntry) HasTimestamp() bool {
	return !e.Timestamp.IsZero()
}

// DateString renders the deploy date or UnknownTimestamp.
func (e DeployHistoryEntry) DateString() string {
	if !e.HasTimestamp() {
		return UnknownTimestamp
	}

	return e.Timestamp.Format(time.DateTime)
}

// Manifest is the per-version package index.
type Manifest struct {
	// FormatTag is the first non-empty manifest line.
	FormatTag string
	// Packages are the package file names in manifest order.
	Packages []string
}

// Variant classifies the manifest by its sentinel package.
func (m *Manifest) Variant() Variant {
	if slices.Contains(m.Packages, PlayerSentinelPackage) {
		return Player
	}

	return Studio
}

// InstalledVersion is a version directory present on disk.
type InstalledVersion struct {
	// Hash is the directory name, which is the version hash.
	Hash string
	// Directory is the absolute path of the version directory.
	Directory string
	// ModTime is the directory modification time.
	ModTime time.Time
}
