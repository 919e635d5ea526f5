package history

import (
	"context"
	"fmt"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
)

// Source returns the raw deploy history.
type Source interface {
	DeployHistory(ctx context.Context) (string, error)
}

// Client fetches and parses the deploy history.
type Client struct {
	source Source
}

// NewClient creates a Client reading from source.
func NewClient(source Source) *Client {
	return &Client{source: source}
}

// FetchVersions returns up to limit distinct builds of variant, newest first.
func (c *Client) FetchVersions(ctx context.Context, variant release.Variant, limit int) ([]release.DeployHistoryEntry, error) {
	text, err := c.source.DeployHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch deploy history: %w", err)
	}

	entries, err := ParseDeployHistory(text, variant, limit)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Parsed deploy history",
		"variant", variant,
		"versions", len(entries),
		"newest", entries[0].Hash,
	)

	return entries, nil
}
