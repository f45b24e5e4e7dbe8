package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

// BrowserFetcher implements Fetcher using a headless browser via Rod.
// The browser process is launched on the first Fetch and reused after that.
// Navigations are serialized: one browser handle serves one page at a time.
type BrowserFetcher struct {
	cfg      config.BrowserConfig
	identity *identityRotator
	proxyMgr *ProxyManager
	logger   *slog.Logger

	mu        sync.Mutex
	launcher  *launcher.Launcher
	browser   *rod.Browser
	launchErr error
	closed    bool
}

// BrowserOption configures the BrowserFetcher.
type BrowserOption func(*BrowserFetcher)

// WithBrowserProxy sets the proxy manager for browser requests.
func WithBrowserProxy(pm *ProxyManager) BrowserOption {
	return func(bf *BrowserFetcher) { bf.proxyMgr = pm }
}

// NewBrowserFetcher creates a headless browser fetcher. No process is
// started until the first Fetch.
func NewBrowserFetcher(cfg *config.Config, logger *slog.Logger, opts ...BrowserOption) *BrowserFetcher {
	bf := &BrowserFetcher{
		cfg:      cfg.Browser,
		identity: newIdentityRotator(cfg.Fetcher.UserAgents, cfg.Fetcher.AcceptLanguage),
		logger:   logger.With("component", "browser_fetcher"),
	}
	for _, opt := range opts {
		opt(bf)
	}
	return bf
}

// ensureBrowser launches and connects the browser once. A failed launch is
// remembered so later calls fail fast instead of relaunching.
func (bf *BrowserFetcher) ensureBrowser() (*rod.Browser, error) {
	if bf.closed {
		return nil, errors.New("browser fetcher is closed")
	}
	if bf.browser != nil {
		return bf.browser, nil
	}
	if bf.launchErr != nil {
		return nil, bf.launchErr
	}

	w, h := randomWindowSize()
	l := launcher.New().
		Headless(bf.cfg.Headless).
		NoSandbox(bf.cfg.NoSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", w, h))
	if bf.cfg.Bin != "" {
		l = l.Bin(bf.cfg.Bin)
	}
	if bf.proxyMgr != nil {
		if proxyURL := bf.proxyMgr.Next(); proxyURL != nil {
			l = l.Proxy(proxyURL.String())
		}
	}

	controlURL, err := l.Launch()
	if err != nil {
		bf.launchErr = fmt.Errorf("launch browser: %w", err)
		return nil, bf.launchErr
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		bf.launchErr = fmt.Errorf("connect browser: %w", err)
		return nil, bf.launchErr
	}

	bf.launcher = l
	bf.browser = browser
	bf.logger.Info("browser launched", "headless", bf.cfg.Headless, "window", fmt.Sprintf("%dx%d", w, h))
	return browser, nil
}

// Fetch navigates to a URL, waits for the body element, lets client-side
// rendering settle and returns the serialized DOM.
func (bf *BrowserFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	rawURL := req.URLString()
	start := time.Now()

	bf.mu.Lock()
	defer bf.mu.Unlock()

	browser, err := bf.ensureBrowser()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchDriver, Err: err}
	}

	page, err := stealth.Page(browser)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchDriver, Err: fmt.Errorf("stealth page: %w", err)}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			bf.logger.Debug("page close failed", "url", rawURL, "error", cerr)
		}
	}()
	page = page.Context(ctx)

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      bf.identity.next(),
		AcceptLanguage: bf.identity.acceptLanguage,
	}); err != nil {
		bf.logger.Warn("failed to set user agent", "error", err)
	}

	navTimeout := bf.cfg.NavigationTimeout
	if req.Timeout > 0 {
		navTimeout = req.Timeout
	}
	if err := page.Timeout(navTimeout).Navigate(rawURL); err != nil {
		kind := types.FetchDriver
		if errors.Is(err, context.DeadlineExceeded) {
			kind = types.FetchTimeout
		}
		return nil, &types.FetchError{URL: rawURL, Kind: kind, Err: fmt.Errorf("navigate: %w", err)}
	}

	// Minimal DOM-ready signal.
	if _, err := page.Timeout(bf.cfg.ReadyTimeout).Element("body"); err != nil {
		return nil, &types.FetchError{
			URL:  rawURL,
			Kind: types.FetchTimeout,
			Err:  fmt.Errorf("body not ready within %s: %w", bf.cfg.ReadyTimeout, err),
		}
	}

	if bf.cfg.Settle > 0 {
		select {
		case <-time.After(bf.cfg.Settle):
		case <-ctx.Done():
			return nil, &types.FetchError{URL: rawURL, Kind: types.FetchTimeout, Err: ctx.Err()}
		}
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchDriver, Err: fmt.Errorf("read DOM: %w", err)}
	}

	finalURL := rawURL
	if info, err := page.Info(); err == nil && info != nil && info.URL != "" {
		finalURL = info.URL
	}

	duration := time.Since(start)
	bf.logger.Debug("browser fetch complete",
		"url", rawURL,
		"final_url", finalURL,
		"size", len(html),
		"duration", duration,
	)
	return types.NewBrowserResponse(req, []byte(html), finalURL, duration), nil
}

// Close shuts down the browser process if it was ever started.
func (bf *BrowserFetcher) Close() error {
	bf.mu.Lock()
	defer bf.mu.Unlock()

	bf.closed = true
	if bf.browser == nil {
		return nil
	}
	err := bf.browser.Close()
	if bf.launcher != nil {
		bf.launcher.Kill()
	}
	bf.browser = nil
	bf.launcher = nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	bf.logger.Info("browser closed")
	return nil
}

// Type returns the fetcher type identifier.
func (bf *BrowserFetcher) Type() string {
	return "browser"
}
