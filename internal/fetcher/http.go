package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
	"golang.org/x/net/publicsuffix"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

// HTTPFetcher implements Fetcher using net/http.
type HTTPFetcher struct {
	client   *http.Client
	cfg      *config.FetcherConfig
	proxyMgr *ProxyManager
	identity *identityRotator
	markers  []string
	logger   *slog.Logger
}

type proxyKey struct{}

// NewHTTPFetcher creates a new HTTP fetcher. proxyMgr may be nil.
func NewHTTPFetcher(cfg *config.Config, logger *slog.Logger, proxyMgr *ProxyManager) (*HTTPFetcher, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.Fetcher.MaxIdleConns,
		MaxIdleConnsPerHost: max(cfg.Fetcher.MaxIdleConns/2, 1),
		IdleConnTimeout:     cfg.Fetcher.IdleConnTimeout,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig:     browserTLSConfig(cfg.Fetcher.TLSInsecure),
		ForceAttemptHTTP2:   true,
		DisableCompression:  true, // We handle decompression ourselves (including brotli)
	}

	if proxyMgr != nil {
		transport.Proxy = func(r *http.Request) (*url.URL, error) {
			if u, ok := r.Context().Value(proxyKey{}).(*url.URL); ok {
				return u, nil
			}
			return nil, nil
		}
	}

	redirectPolicy := func(req *http.Request, via []*http.Request) error {
		if !cfg.Fetcher.FollowRedirects {
			return http.ErrUseLastResponse
		}
		if len(via) >= cfg.Fetcher.MaxRedirects {
			return fmt.Errorf("max redirects (%d) reached", cfg.Fetcher.MaxRedirects)
		}
		return nil
	}

	markers := make([]string, 0, len(cfg.Fetcher.BlockMarkers))
	for _, m := range cfg.Fetcher.BlockMarkers {
		markers = append(markers, strings.ToLower(m))
	}

	return &HTTPFetcher{
		client: &http.Client{
			Transport:     transport,
			Jar:           jar,
			CheckRedirect: redirectPolicy,
		},
		cfg:      &cfg.Fetcher,
		proxyMgr: proxyMgr,
		identity: newIdentityRotator(cfg.Fetcher.UserAgents, cfg.Fetcher.AcceptLanguage),
		markers:  markers,
		logger:   logger.With("component", "http_fetcher"),
	}, nil
}

// Fetch executes a GET and returns the decoded response. Non-2xx statuses,
// transport failures and bot-wall pages are reported as *types.FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, req *types.Request) (*types.Response, error) {
	rawURL := req.URLString()

	timeout := f.cfg.Timeout
	if req.Timeout > 0 {
		timeout = req.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var proxyURL *url.URL
	if f.proxyMgr != nil {
		if proxyURL = f.proxyMgr.Next(); proxyURL != nil {
			ctx = context.WithValue(ctx, proxyKey{}, proxyURL)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchNetwork, Err: err}
	}
	f.identity.apply(httpReq.Header, f.identity.next())
	for key, values := range req.Headers {
		for _, v := range values {
			httpReq.Header.Set(key, v)
		}
	}

	start := time.Now()
	httpResp, err := f.client.Do(httpReq)
	if err != nil {
		if proxyURL != nil && ctx.Err() == nil {
			f.proxyMgr.MarkFailed(proxyURL, err)
		}
		return nil, &types.FetchError{URL: rawURL, Kind: classify(err), Err: timeoutErr(err)}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(httpResp.Body, 512))
		statusErr := fmt.Errorf("HTTP %d: %s", httpResp.StatusCode, strings.TrimSpace(string(snippet)))
		if httpResp.StatusCode == http.StatusForbidden || httpResp.StatusCode == http.StatusTooManyRequests {
			statusErr = fmt.Errorf("HTTP %d: %w", httpResp.StatusCode, types.ErrBlocked)
		}
		return nil, &types.FetchError{
			URL:        rawURL,
			Kind:       types.FetchNetwork,
			StatusCode: httpResp.StatusCode,
			Err:        statusErr,
		}
	}

	// Read body with size limit
	var reader io.Reader = httpResp.Body
	if f.cfg.MaxBodySize > 0 {
		reader = io.LimitReader(reader, f.cfg.MaxBodySize)
	}

	reader, err = decompressReader(httpResp, reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchNetwork, Err: err}
	}

	// Transcode to UTF-8 using the Content-Type charset or a <meta> sniff.
	reader, err = charset.NewReader(reader, httpResp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchNetwork, Err: fmt.Errorf("decode charset: %w", err)}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &types.FetchError{URL: rawURL, Kind: classify(err), Err: timeoutErr(err)}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchNetwork, StatusCode: httpResp.StatusCode, Err: types.ErrEmptyResponse}
	}
	if marker, blocked := f.detectBlock(body); blocked {
		return nil, &types.FetchError{
			URL:        rawURL,
			Kind:       types.FetchNetwork,
			StatusCode: httpResp.StatusCode,
			Err:        fmt.Errorf("%w (marker %q)", types.ErrBlocked, marker),
		}
	}

	duration := time.Since(start)
	resp := types.NewResponse(req, httpResp, body, duration)

	f.logger.Debug("fetch complete",
		"url", rawURL,
		"status", resp.StatusCode,
		"size", len(body),
		"duration", duration,
	)

	return resp, nil
}

// Close releases resources.
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}

// Type returns the fetcher type identifier.
func (f *HTTPFetcher) Type() string {
	return "http"
}

// Transport returns a round tripper over the fetcher's connection pool and
// TLS settings that picks a proxy per request, for components that issue
// their own requests.
func (f *HTTPFetcher) Transport() http.RoundTripper {
	return &rotatingTransport{base: f.client.Transport, proxyMgr: f.proxyMgr}
}

// CookieJar returns the fetcher's cookie jar.
func (f *HTTPFetcher) CookieJar() http.CookieJar { return f.client.Jar }

type rotatingTransport struct {
	base     http.RoundTripper
	proxyMgr *ProxyManager
}

func (t *rotatingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.proxyMgr == nil {
		return t.base.RoundTrip(r)
	}
	proxyURL := t.proxyMgr.Next()
	if proxyURL == nil {
		return t.base.RoundTrip(r)
	}
	resp, err := t.base.RoundTrip(r.WithContext(context.WithValue(r.Context(), proxyKey{}, proxyURL)))
	if err != nil && r.Context().Err() == nil {
		t.proxyMgr.MarkFailed(proxyURL, err)
	}
	return resp, err
}

// NextUserAgent returns the next identity in rotation.
func (f *HTTPFetcher) NextUserAgent() string { return f.identity.next() }

var (
	titleRe     = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	paragraphRe = regexp.MustCompile(`(?is)<p[\s>].*?</p>`)
	tagRe       = regexp.MustCompile(`(?s)<[^>]*>`)
)

// blockScanLimit bounds how much of a page is searched for bot-wall markers
// outside the title. Real articles are longer than challenge pages.
const blockScanLimit = 16 * 1024

// challengeTextLimit is the most paragraph text a challenge page carries.
// Pages with more are treated as content even if a marker appears.
const challengeTextLimit = 200

// detectBlock reports whether body looks like a captcha or bot-check page.
// The title is always checked; the body only on short pages without
// article paragraphs.
func (f *HTTPFetcher) detectBlock(body []byte) (string, bool) {
	if len(f.markers) == 0 {
		return "", false
	}
	var title string
	if m := titleRe.FindSubmatch(body); m != nil {
		title = strings.ToLower(string(m[1]))
	}
	var head string
	if len(body) <= blockScanLimit && paragraphTextLen(body) < challengeTextLimit {
		head = strings.ToLower(string(body))
	}
	for _, marker := range f.markers {
		if strings.Contains(title, marker) || (head != "" && strings.Contains(head, marker)) {
			return marker, true
		}
	}
	return "", false
}

func paragraphTextLen(body []byte) int {
	n := 0
	for _, p := range paragraphRe.FindAll(body, -1) {
		n += len(bytes.TrimSpace(tagRe.ReplaceAll(p, nil)))
	}
	return n
}

// decompressReader wraps a reader with the appropriate decompressor.
// Handles gzip, deflate, and brotli (br) encodings.
func decompressReader(resp *http.Response, reader io.Reader) (io.Reader, error) {
	switch strings.ToLower(resp.Header.Get("Content-Encoding")) {
	case "gzip":
		return gzip.NewReader(reader)
	case "deflate":
		return flate.NewReader(reader), nil
	case "br":
		return brotli.NewReader(reader), nil
	default:
		return reader, nil
	}
}

// timeoutErr tags deadline failures with types.ErrTimeout.
func timeoutErr(err error) error {
	if classify(err) == types.FetchTimeout {
		return fmt.Errorf("%w: %w", types.ErrTimeout, err)
	}
	return err
}

// classify maps a transport error onto a fetch error kind.
func classify(err error) types.FetchErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return types.FetchTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return types.FetchTimeout
	}
	return types.FetchNetwork
}
