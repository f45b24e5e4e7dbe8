package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Fetcher is the interface for all page fetcher implementations.
type Fetcher interface {
	// Fetch retrieves the content at the given request's URL.
	Fetch(ctx context.Context, req *types.Request) (*types.Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the fetcher type identifier.
	Type() string
}

// Client routes requests to the plain or rendered fetcher by mode. It owns
// both and releases both on Close.
type Client struct {
	plain         Fetcher
	rendered      Fetcher
	renderEnabled bool
	logger        *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithPlain replaces the plain fetcher.
func WithPlain(f Fetcher) ClientOption {
	return func(c *Client) { c.plain = f }
}

// WithRendered replaces the rendered fetcher and enables rendered mode.
func WithRendered(f Fetcher) ClientOption {
	return func(c *Client) {
		c.rendered = f
		c.renderEnabled = f != nil
	}
}

// NewClient builds the plain fetcher and, when browser.enabled is set, a
// lazily launched browser fetcher.
func NewClient(cfg *config.Config, logger *slog.Logger, opts ...ClientOption) (*Client, error) {
	c := &Client{
		renderEnabled: cfg.Browser.Enabled,
		logger:        logger.With("component", "fetch_client"),
	}
	for _, opt := range opts {
		opt(c)
	}

	var proxyMgr *ProxyManager
	if cfg.Proxy.Enabled && len(cfg.Proxy.URLs) > 0 {
		proxyMgr = NewProxyManager(&cfg.Proxy, logger)
	}

	if c.plain == nil {
		hf, err := NewHTTPFetcher(cfg, logger, proxyMgr)
		if err != nil {
			return nil, err
		}
		c.plain = hf
	}
	if c.rendered == nil && c.renderEnabled {
		c.rendered = NewBrowserFetcher(cfg, logger, WithBrowserProxy(proxyMgr))
	}
	return c, nil
}

// Fetch dispatches req to the fetcher for req.Mode.
func (c *Client) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	switch req.Mode {
	case types.ModeRendered:
		if !c.renderEnabled || c.rendered == nil {
			return nil, &types.FetchError{URL: req.URLString(), Kind: types.FetchDriver, Err: types.ErrRenderDisabled}
		}
		return c.rendered.Fetch(ctx, req)
	case types.ModePlain, "":
		return c.plain.Fetch(ctx, req)
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", req.Mode)
	}
}

// Get fetches rawURL in the given mode with an optional per-call timeout.
func (c *Client) Get(ctx context.Context, rawURL string, mode types.FetchMode, timeout time.Duration) (*types.Response, error) {
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchNetwork, Err: err}
	}
	req.Mode = mode
	req.Timeout = timeout
	return c.Fetch(ctx, req)
}

// RenderEnabled reports whether rendered mode is available.
func (c *Client) RenderEnabled() bool { return c.renderEnabled && c.rendered != nil }

// NextUserAgent returns the plain fetcher's next rotated user agent, or ""
// when the plain fetcher does not rotate identities.
func (c *Client) NextUserAgent() string {
	if hf, ok := c.plain.(*HTTPFetcher); ok {
		return hf.NextUserAgent()
	}
	return ""
}

// Transport returns the plain fetcher's proxy-aware transport, or nil when
// the plain fetcher is not an HTTPFetcher.
func (c *Client) Transport() http.RoundTripper {
	if hf, ok := c.plain.(*HTTPFetcher); ok {
		return hf.Transport()
	}
	return nil
}

// CookieJar returns the plain fetcher's cookie jar, or nil.
func (c *Client) CookieJar() http.CookieJar {
	if hf, ok := c.plain.(*HTTPFetcher); ok {
		return hf.CookieJar()
	}
	return nil
}

// Close releases both fetchers. It always closes both, even if one fails.
func (c *Client) Close() error {
	var errs []error
	if c.rendered != nil {
		if err := c.rendered.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s fetcher: %w", c.rendered.Type(), err))
		}
	}
	if c.plain != nil {
		if err := c.plain.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s fetcher: %w", c.plain.Type(), err))
		}
	}
	c.logger.Debug("fetch client closed")
	return errors.Join(errs...)
}

// Type returns the fetcher type identifier.
func (c *Client) Type() string { return "client" }
