package manifest

import (
	"context"
	"fmt"
	"strings"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
)

// Source returns the raw manifest of a version.
type Source interface {
	Manifest(ctx context.Context, hash string) (string, error)
}

// Resolver turns a version hash into its variant and package list.
type Resolver struct {
	source Source
}

// NewResolver creates a Resolver reading from source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve fetches and parses the manifest of hash.
func (r *Resolver) Resolve(ctx context.Context, hash string) (release.Variant, []string, error) {
	m, err := r.Fetch(ctx, hash)
	if err != nil {
		return "", nil, err
	}

	return m.Variant(), m.Packages, nil
}

// ResolveFor is Resolve that also requires the manifest to belong to want.
func (r *Resolver) ResolveFor(ctx context.Context, hash string, want release.Variant) ([]string, error) {
	got, packages, err := r.Resolve(ctx, hash)
	if err != nil {
		return nil, err
	}

	if got != want {
		return nil, fmt.Errorf("%s is a %s build, not %s: %w", hash, got, want, release.ErrVariantMismatch)
	}

	return packages, nil
}

// Fetch returns the parsed manifest of hash.
func (r *Resolver) Fetch(ctx context.Context, hash string) (*release.Manifest, error) {
	text, err := r.source.Manifest(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest of %s: %w", hash, err)
	}

	m, err := Parse(text)
	if err != nil {
		return nil, fmt.Errorf("manifest of %s: %w", hash, err)
	}

	logger.DebugKV(ctx, "Resolved manifest",
		"hash", hash,
		"variant", m.Variant(),
		"packages", len(m.Packages),
	)

	return m, nil
}

// Parse validates the format tag and collects package lines in manifest order.
func Parse(text string) (*release.Manifest, error) {
	var (
		m       release.Manifest
		tagSeen bool
	)

	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !tagSeen {
			if line != release.ManifestFormat {
				return nil, fmt.Errorf("format tag %q, want %q: %w", line, release.ManifestFormat, release.ErrFormat)
			}

			m.FormatTag = line
			tagSeen = true

			continue
		}

		if strings.HasSuffix(line, release.PackageSuffix) {
			m.Packages = append(m.Packages, line)
		}
	}

	if !tagSeen {
		return nil, fmt.Errorf("empty manifest: %w", release.ErrFormat)
	}

	if len(m.Packages) == 0 {
		return nil, fmt.Errorf("no packages listed: %w", release.ErrFormat)
	}

	return &m, nil
}
