package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// Mode is a version selection strategy.
type Mode string

const (
	// ModeLatest picks the newest build.
	ModeLatest Mode = "latest"
	// ModeDowngrade picks the build DowngradeDepth deployments back.
	ModeDowngrade Mode = "downgrade"
	// ModeCustom installs a caller-supplied hash.
	ModeCustom Mode = "custom"
)

// DowngradeDepth is the position of the downgrade target in the history, newest being 1.
const DowngradeDepth = 3

var (
	// ErrUnknownMode is returned for unsupported selection modes.
	ErrUnknownMode = errors.New("unknown selection mode")
	// ErrInvalidHash is returned for malformed custom hashes.
	ErrInvalidHash = errors.New("invalid version hash")
)

// Selection chooses which version a pipeline installs.
type Selection struct {
	Mode Mode
	// Hash is used by ModeCustom only.
	Hash string
}

// Latest selects the newest build.
func Latest() Selection {
	return Selection{Mode: ModeLatest}
}

// Downgrade selects the third most recent build.
func Downgrade() Selection {
	return Selection{Mode: ModeDowngrade}
}

// Custom selects hash. A missing "version-" prefix is added.
func Custom(hash string) Selection {
	hash = strings.TrimSpace(hash)
	if hash != "" && !strings.HasPrefix(hash, release.VersionPrefix) {
		hash = release.VersionPrefix + hash
	}

	return Selection{Mode: ModeCustom, Hash: hash}
}

// ParseMode converts user input into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeLatest, ModeDowngrade, ModeCustom:
		return m, nil
	default:
		return "", fmt.Errorf("%q: %w", s, ErrUnknownMode)
	}
}

// NeedsHistory reports whether the selection reads the deploy history.
func (s Selection) NeedsHistory() bool {
	return s.Mode != ModeCustom
}

// Validate checks the selection before any network access.
func (s Selection) Validate() error {
	switch s.Mode {
	case ModeLatest, ModeDowngrade:
		return nil
	case ModeCustom:
		token := strings.TrimPrefix(s.Hash, release.VersionPrefix)
		if token == "" || token == s.Hash {
			return fmt.Errorf("%q: %w", s.Hash, ErrInvalidHash)
		}

		for _, r := range token {
			if !isAlphanumeric(r) {
				return fmt.Errorf("%q: %w", s.Hash, ErrInvalidHash)
			}
		}

		return nil
	default:
		return fmt.Errorf("%q: %w", s.Mode, ErrUnknownMode)
	}
}

// Pick returns the hash chosen from entries, newest first.
func (s Selection) Pick(entries []release.DeployHistoryEntry) (string, error) {
	switch s.Mode {
	case ModeCustom:
		return s.Hash, nil
	case ModeLatest:
		if len(entries) == 0 {
			return "", release.ErrNotFound
		}

		return entries[0].Hash, nil
	case ModeDowngrade:
		if len(entries) < DowngradeDepth {
			return "", fmt.Errorf("downgrade needs %d versions, history has %d: %w",
				DowngradeDepth, len(entries), release.ErrNotEnoughVersions)
		}

		return entries[DowngradeDepth-1].Hash, nil
	default:
		return "", fmt.Errorf("%q: %w", s.Mode, ErrUnknownMode)
	}
}

// String implements fmt.Stringer.
func (s Selection) String() string {
	if s.Mode == ModeCustom {
		return string(s.Mode) + ":" + s.Hash
	}

	return string(s.Mode)
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
