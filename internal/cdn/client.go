package cdn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KirshWasHere/DowngradeRoblox/internal/domain/release"
	"github.com/KirshWasHere/DowngradeRoblox/internal/logger"
	"github.com/KirshWasHere/DowngradeRoblox/internal/version"
)

// Cache stores fetched text documents.
// A zero ttl keeps the value until it is evicted.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Options configures a Client.
type Options struct {
	// DeployHistoryURL is the full URL of the change log.
	DeployHistoryURL string
	// BaseURL prefixes manifest and package paths.
	BaseURL string
	// Timeout bounds dialing and waiting for response headers.
	Timeout time.Duration
	// HTTPClient overrides the transport, used by tests.
	HTTPClient *http.Client
	// Cache is optional.
	Cache Cache
	// HistoryTTL is the cache lifetime of the deploy history body.
	HistoryTTL time.Duration
}

// Client fetches documents and packages from the CDN.
type Client struct {
	historyURL string
	baseURL    string
	http       *http.Client
	cache      Cache
	historyTTL time.Duration
}

const (
	historyCacheKey   = "deploy-history/"
	manifestKeyPrefix = "manifest/"
)

var (
	// errEmptyURL is returned when a required URL is not configured.
	errEmptyURL = errors.New("url is not set")
)

// New creates a Client.
func New(opts Options) (*Client, error) {
	if opts.DeployHistoryURL == "" || opts.BaseURL == "" {
		return nil, errEmptyURL
	}

	if _, err := url.ParseRequestURI(opts.DeployHistoryURL); err != nil {
		return nil, fmt.Errorf("deploy history url: %w", err)
	}

	if _, err := url.ParseRequestURI(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(opts.Timeout)
	}

	return &Client{
		historyURL: opts.DeployHistoryURL,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		http:       httpClient,
		cache:      opts.Cache,
		historyTTL: opts.HistoryTTL,
	}, nil
}

// newHTTPClient has no overall deadline so large packages are not cut off;
// only connecting and the wait for headers are bounded.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{}
	}

	transport = transport.Clone()

	if timeout > 0 {
		transport.DialContext = (&net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}).DialContext
		transport.TLSHandshakeTimeout = timeout
		transport.ResponseHeaderTimeout = timeout
	}

	return &http.Client{Transport: transport}
}

// ManifestURL returns the manifest location of a version.
func (c *Client) ManifestURL(hash string) string {
	return c.baseURL + "/" + hash + "-" + release.ManifestFilename
}

// PackageURL returns the location of one package of a version.
func (c *Client) PackageURL(hash, pkg string) string {
	return c.baseURL + "/" + hash + "-" + pkg
}

// DeployHistory returns the raw change log.
func (c *Client) DeployHistory(ctx context.Context) (string, error) {
	return c.fetchText(ctx, c.historyURL, historyCacheKey+c.historyURL, c.historyTTL, false)
}

// Manifest returns the raw package manifest of a version.
// Manifests never change once published, so they are cached without expiry.
func (c *Client) Manifest(ctx context.Context, hash string) (string, error) {
	return c.fetchText(ctx, c.ManifestURL(hash), manifestKeyPrefix+c.ManifestURL(hash), 0, true)
}

// DownloadPackage streams one package into w and returns the number of bytes copied.
func (c *Client) DownloadPackage(ctx context.Context, hash, pkg string, w io.Writer) (int64, error) {
	finalURL := c.PackageURL(hash, pkg)

	response, err := c.get(ctx, finalURL, true)
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return 0, err
	}

	written, err := io.Copy(w, response.Body)
	if err != nil {
		return written, fmt.Errorf("download %s: %w: %w", finalURL, release.ErrNetwork, err)
	}

	return written, nil
}

// Keys carry the source URL so documents cached from another base are not reused.
func (c *Client) fetchText(ctx context.Context, finalURL, key string, ttl time.Duration, versioned bool) (string, error) {
	if c.cache != nil {
		data, ok, err := c.cache.Get(ctx, key)

		switch {
		case err != nil:
			logger.WarnKV(ctx, "Cache read failed", "key", key, "error", err)
		case ok:
			logger.DebugKV(ctx, "Served from cache", "key", key)

			return string(data), nil
		}
	}

	response, err := c.get(ctx, finalURL, versioned)
	if response != nil {
		defer func() {
			_ = response.Body.Close()
		}()
	}

	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read %s: %w: %w", finalURL, release.ErrNetwork, err)
	}

	if c.cache != nil {
		if err = c.cache.Put(ctx, key, data, ttl); err != nil {
			logger.WarnKV(ctx, "Cache write failed", "key", key, "error", err)
		}
	}

	return string(data), nil
}

// get issues a GET and classifies the outcome. A 403 on a versioned object
// (manifest or package) means the build is no longer served.
// The response is returned whenever it exists so the caller can close it.
func (c *Client) get(ctx context.Context, finalURL string, versioned bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())

	logger.DebugKV(ctx, "Fetching", "url", finalURL)

	response, err := c.http.Do(req)
	if err != nil {
		return response, fmt.Errorf("%s: %w: %w", finalURL, release.ErrNetwork, err)
	}

	switch {
	case versioned && response.StatusCode == http.StatusForbidden:
		return response, fmt.Errorf("%s, %s: %w", finalURL, response.Status, release.ErrUnavailable)
	case response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices:
		return response, fmt.Errorf("%s, %s: %w", finalURL, response.Status, release.ErrNetwork)
	}

	return response, nil
}
