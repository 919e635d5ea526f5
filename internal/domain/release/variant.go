package release

import (
	"fmt"
	"strings"
)

// Variant is the distribution flavor of a build.
type Variant string

const (
	// Player is the Roblox game client.
	Player Variant = "player"
	// Studio is the Roblox development environment.
	Studio Variant = "studio"
)

// PlayerSentinelPackage is present in every player manifest and in no studio manifest.
const PlayerSentinelPackage = "RobloxApp.zip"

// Variants lists every supported variant in install order.
func Variants() []Variant {
	return []Variant{Player, Studio}
}

// ParseVariant converts user input into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch Variant(strings.ToLower(strings.TrimSpace(s))) {
	case Player:
		return Player, nil
	case Studio:
		return Studio, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownVariant)
	}
}

// ParseVariants expands "both" into every variant, anything else into one.
func ParseVariants(s string) ([]Variant, error) {
	if strings.EqualFold(strings.TrimSpace(s), "both") {
		return Variants(), nil
	}

	v, err := ParseVariant(s)
	if err != nil {
		return nil, err
	}

	return []Variant{v}, nil
}

// String implements fmt.Stringer.
func (v Variant) String() string {
	return string(v)
}

// Title is the human-readable variant name.
func (v Variant) Title() string {
	switch v {
	case Player:
		return "Player"
	case Studio:
		return "Studio"
	default:
		return string(v)
	}
}

// BinaryType is the CDN binary type, also used in archive names.
func (v Variant) BinaryType() string {
	if v == Player {
		return "WindowsPlayer"
	}

	return "WindowsStudio64"
}

// HistoryMarker is the substring that identifies the variant's lines in the deploy history.
func (v Variant) HistoryMarker() string {
	if v == Player {
		return "New WindowsPlayer"
	}

	return "New Studio64"
}

// PrimaryExecutable is the binary started from an installed version directory.
func (v Variant) PrimaryExecutable() string {
	if v == Player {
		return "RobloxPlayerBeta.exe"
	}

	return "RobloxStudioBeta.exe"
}

// KnownProcesses are executables that hold files of the variant's installs open.
func (v Variant) KnownProcesses() []string {
	if v == Player {
		return []string{"RobloxPlayerBeta.exe", "weblauncher.exe"}
	}

	return []string{"RobloxStudioBeta.exe"}
}

// ArchiveName is the file name of the assembled archive for a version.
func (v Variant) ArchiveName(hash string) string {
	return "WEAO-" + v.BinaryType() + "-" + hash + ".zip"
}
