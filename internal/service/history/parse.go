package history

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
)

// DateLayout is the deploy date format used by the deploy history.
const DateLayout = "1/2/2006 3:04:05 PM"

// ParseDeployHistory returns up to limit distinct builds of variant, newest first.
// A limit of zero or less returns every build found.
func ParseDeployHistory(text string, variant release.Variant, limit int) ([]release.DeployHistoryEntry, error) {
	var (
		lines   = strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
		marker  = variant.HistoryMarker()
		seen    = make(map[string]struct{})
		entries []release.DeployHistoryEntry
	)

	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.Contains(line, marker) || !strings.Contains(line, release.VersionPrefix) {
			continue
		}

		hash, ok := extractHash(line)
		if !ok {
			continue
		}

		if _, dup := seen[hash]; dup {
			continue
		}

		seen[hash] = struct{}{}

		entries = append(entries, release.DeployHistoryEntry{
			Hash:      hash,
			Timestamp: extractTimestamp(line),
			RawLine:   line,
		})

		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%s: %w", variant, release.ErrNotFound)
	}

	return entries, nil
}

// extractHash returns "version-" followed by the token after the first "version-".
func extractHash(line string) (string, bool) {
	_, rest, found := strings.Cut(line, release.VersionPrefix)
	if !found {
		return "", false
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", false
	}

	token := strings.TrimRight(fields[0], ",.")
	if token == "" {
		return "", false
	}

	for _, r := range token {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return "", false
		}
	}

	return release.VersionPrefix + token, true
}

// extractTimestamp parses the text between " at " and the next comma.
func extractTimestamp(line string) time.Time {
	_, rest, found := strings.Cut(line, " at ")
	if !found {
		return time.Time{}
	}

	date, _, _ := strings.Cut(rest, ",")

	ts, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}
	}

	return ts
}
