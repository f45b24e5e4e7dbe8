// Package extractor recovers the main text of an article page by trying
// several extraction methods in order and keeping the longest result.
package extractor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Fetcher retrieves a page in the given mode.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, mode types.FetchMode, timeout time.Duration) (*types.Response, error)
}

// Method is one extraction strategy.
type Method struct {
	Name string

	// Below gates the method on the best score so far: it only runs while
	// the best is shorter than Below. Zero means always run.
	Below int

	// Rendered methods are skipped unless rendering is enabled.
	Rendered bool

	Run func(ctx context.Context, p *Page) (string, error)
}

// Extractor runs the configured methods against a URL.
type Extractor struct {
	cfg       config.ExtractorConfig
	fetcher   Fetcher
	methods   []Method
	render    bool
	timeout   func(host string) time.Duration
	userAgent func() string
	transport http.RoundTripper
	jar       http.CookieJar
	logger    *slog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMethods replaces the configured method list.
func WithMethods(methods ...Method) Option {
	return func(e *Extractor) { e.methods = methods }
}

// WithRender enables rendered methods.
func WithRender(enabled bool) Option {
	return func(e *Extractor) { e.render = enabled }
}

// WithTimeouts sets the per-host fetch timeout lookup.
func WithTimeouts(fn func(host string) time.Duration) Option {
	return func(e *Extractor) { e.timeout = fn }
}

// WithUserAgent sets the user agent source for methods that download pages
// themselves.
func WithUserAgent(fn func() string) Option {
	return func(e *Extractor) { e.userAgent = fn }
}

// WithTransport sets the transport for methods that download pages themselves.
func WithTransport(rt http.RoundTripper) Option {
	return func(e *Extractor) { e.transport = rt }
}

// WithCookieJar shares a cookie jar with methods that download pages
// themselves.
func WithCookieJar(jar http.CookieJar) Option {
	return func(e *Extractor) { e.jar = jar }
}

// New builds an Extractor whose methods follow cfg.Methods.
func New(cfg config.ExtractorConfig, f Fetcher, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		cfg:     cfg,
		fetcher: f,
		logger:  logger.With("component", "extractor"),
	}
	for _, name := range cfg.Methods {
		if m, ok := e.builtin(name); ok {
			e.methods = append(e.methods, m)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract returns the longest text produced by any method. Method failures
// are logged and skipped; the zero Extraction means nothing was found.
func (e *Extractor) Extract(ctx context.Context, rawURL string) types.Extraction {
	page := e.newPage(rawURL)
	var best types.Extraction

	for _, m := range e.methods {
		if ctx.Err() != nil {
			break
		}
		if m.Below > 0 && best.Score() >= m.Below {
			continue
		}
		if m.Rendered && !e.render {
			continue
		}

		text, err := runMethod(ctx, m, page)
		if err != nil {
			e.logFailure(&types.ExtractionError{Method: m.Name, URL: rawURL, Err: err})
			continue
		}

		candidate := types.Extraction{Text: strings.TrimSpace(text), Method: m.Name}
		e.logger.Debug("method finished", "url", rawURL, "method", m.Name, "score", candidate.Score())
		if candidate.Score() > best.Score() {
			best = candidate
		}
	}

	if best.Empty() {
		e.logger.Warn("no content extracted", "url", rawURL)
	} else {
		e.logger.Info("content extracted", "url", rawURL, "method", best.Method, "score", best.Score())
	}
	return best
}

// runMethod converts a panic inside a method into an error so the remaining
// methods still run.
func runMethod(ctx context.Context, m Method, p *Page) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("method panicked: %v", r)
		}
	}()
	return m.Run(ctx, p)
}

func (e *Extractor) logFailure(err *types.ExtractionError) {
	if types.IsFetchKind(err, types.FetchDriver) || types.IsFetchKind(err, types.FetchTimeout) {
		e.logger.Warn("extraction method failed", "url", err.URL, "method", err.Method, "error", err.Err)
		return
	}
	e.logger.Debug("extraction method failed", "url", err.URL, "method", err.Method, "error", err.Err)
}

func (e *Extractor) newPage(rawURL string) *Page {
	p := &Page{url: rawURL, fetcher: e.fetcher, strip: e.cfg.StripSelectors}
	if e.timeout != nil {
		if req, err := types.NewRequest(rawURL); err == nil {
			p.timeout = e.timeout(req.Domain())
		}
	}
	return p
}

// Page memoizes the fetches of a single Extract call so every method shares
// one plain download and at most one rendered one.
type Page struct {
	url      string
	timeout  time.Duration
	fetcher  Fetcher
	strip    []string
	plain    fetched
	rendered fetched
}

type fetched struct {
	done bool
	resp *types.Response
	err  error
}

// URL returns the page URL.
func (p *Page) URL() string { return p.url }

// Timeout returns the per-host fetch timeout, zero for the fetcher default.
func (p *Page) Timeout() time.Duration { return p.timeout }

// Response fetches the page in mode, at most once per mode.
func (p *Page) Response(ctx context.Context, mode types.FetchMode) (*types.Response, error) {
	slot := &p.plain
	if mode == types.ModeRendered {
		slot = &p.rendered
	}
	if !slot.done {
		slot.resp, slot.err = p.fetcher.Get(ctx, p.url, mode, p.timeout)
		slot.done = true
	}
	return slot.resp, slot.err
}

// Document returns a fresh parse of the page body in mode with the noise
// selectors removed. Callers may mutate it.
func (p *Page) Document(ctx context.Context, mode types.FetchMode) (*goquery.Document, error) {
	resp, err := p.Response(ctx, mode)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.HTML()))
	if err != nil {
		return nil, err
	}
	stripNoise(doc.Selection, p.strip)
	return doc, nil
}
