// Package finscrape provides a public SDK for embedding the financial news
// collector as a library.
//
// Example usage:
//
//	c, err := finscrape.New(ctx,
//	    finscrape.WithTarget("Reuters Markets", "https://www.reuters.com/markets/", "h3 a"),
//	    finscrape.WithStorage("jsonl", "./data"),
//	    finscrape.WithDelay(time.Second, 3*time.Second),
//	)
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	summary, err := c.Run(ctx)
package finscrape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/engine"
	"github.com/IshaanNene/finscrape/internal/extractor"
	"github.com/IshaanNene/finscrape/internal/fetcher"
	"github.com/IshaanNene/finscrape/internal/filter"
	"github.com/IshaanNene/finscrape/internal/storage"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Re-exported result types.
type (
	RunSummary   = types.RunSummary
	TargetResult = types.TargetResult
	Record       = types.Record
	Extraction   = types.Extraction
)

// Collector is the high-level API for running passes from Go code.
type Collector struct {
	cfg    *config.Config
	client *fetcher.Client
	store  storage.Store
	engine *engine.Engine
	filter *filter.Filter
	logger *slog.Logger
}

type settings struct {
	cfg        *config.Config
	configFile string
	targets    []config.TargetConfig
	logger     *slog.Logger
}

func (s *settings) apply(opts []Option) {
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
}

// Option configures a Collector.
type Option func(*settings)

// WithConfigFile loads settings from a YAML file before other options apply.
func WithConfigFile(path string) Option {
	return func(s *settings) { s.configFile = path }
}

// WithTarget adds a source. Once any target is added the built-in targets
// are no longer used.
func WithTarget(name, landingURL string, linkSelectors ...string) Option {
	return func(s *settings) {
		rules := make([]types.LinkRule, 0, len(linkSelectors))
		for _, sel := range linkSelectors {
			kind := types.SelectorCSS
			if strings.HasPrefix(sel, "/") || strings.HasPrefix(sel, "(") {
				kind = types.SelectorXPath
			}
			rules = append(rules, types.LinkRule{Selector: sel, Kind: kind})
		}
		s.targets = append(s.targets, config.TargetConfig{Name: name, URL: landingURL, Links: rules})
	}
}

// WithStorage selects the backend. location is the directory for jsonl,
// the connection URI for mongo and the DSN for postgres.
func WithStorage(kind, location string) Option {
	return func(s *settings) {
		s.cfg.Storage.Type = kind
		switch kind {
		case "jsonl":
			s.cfg.Storage.Path = location
		case "mongo":
			s.cfg.Storage.URI = location
		case "postgres":
			s.cfg.Storage.DSN = location
		}
	}
}

// WithDelay sets the default delay range between requests.
func WithDelay(lo, hi time.Duration) Option {
	return func(s *settings) {
		s.cfg.Engine.MinDelay, s.cfg.Engine.MaxDelay = lo, hi
		s.cfg.Sites = nil
	}
}

// WithMaxCandidates caps the links processed per target per pass.
func WithMaxCandidates(n int) Option {
	return func(s *settings) { s.cfg.Engine.MaxCandidates = n }
}

// WithRender enables the headless browser.
func WithRender(enabled bool) Option {
	return func(s *settings) { s.cfg.Browser.Enabled = enabled }
}

// WithMethods sets the extraction method order.
func WithMethods(names ...string) Option {
	return func(s *settings) { s.cfg.Extractor.Methods = names }
}

// WithRobotsRespect enables/disables robots.txt compliance.
func WithRobotsRespect(respect bool) Option {
	return func(s *settings) { s.cfg.Engine.RespectRobotsTxt = respect }
}

// WithProxy enables proxy rotation with the given proxy URLs.
func WithProxy(urls ...string) Option {
	return func(s *settings) {
		s.cfg.Proxy.Enabled = true
		s.cfg.Proxy.URLs = urls
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithVerbose enables debug-level logging.
func WithVerbose() Option {
	return func(s *settings) { s.cfg.Logging.Level = "debug" }
}

// New builds a Collector and opens its fetcher and storage.
func New(ctx context.Context, opts ...Option) (*Collector, error) {
	s := &settings{cfg: config.DefaultConfig()}
	s.apply(opts)
	if s.configFile != "" {
		cfg, err := config.Load(s.configFile)
		if err != nil {
			return nil, err
		}
		// explicit options win over the file
		s = &settings{cfg: cfg}
		s.apply(opts)
	}
	if len(s.targets) > 0 {
		s.cfg.Targets = s.targets
	}
	if err := config.Validate(s.cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := s.logger
	if logger == nil {
		level := slog.LevelInfo
		if s.cfg.Logging.Level == "debug" {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	f, err := filter.New(s.cfg.Filter)
	if err != nil {
		return nil, fmt.Errorf("build filter: %w", err)
	}
	client, err := fetcher.NewClient(s.cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("create fetcher: %w", err)
	}
	store, err := storage.New(ctx, s.cfg.Storage, logger)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	return &Collector{
		cfg:    s.cfg,
		client: client,
		store:  store,
		engine: engine.New(config.Static(s.cfg), client, store, logger),
		filter: f,
		logger: logger,
	}, nil
}

// Run performs one pass over the configured targets.
func (c *Collector) Run(ctx context.Context) (*RunSummary, error) {
	return c.engine.Run(ctx)
}

// Extract runs the extraction methods against one URL without storing it.
func (c *Collector) Extract(ctx context.Context, rawURL string) Extraction {
	ex := extractor.New(c.cfg.Extractor, c.client, c.logger,
		extractor.WithRender(c.client.RenderEnabled()),
		extractor.WithTimeouts(c.cfg.Timeout),
		extractor.WithUserAgent(c.client.NextUserAgent),
		extractor.WithTransport(c.client.Transport()),
		extractor.WithCookieJar(c.client.CookieJar()),
	)
	return ex.Extract(ctx, rawURL)
}

// IsRelevant applies the relevance filter to an article.
func (c *Collector) IsRelevant(title, content string) bool {
	return c.filter.IsRelevant(title, content)
}

// Pending returns stored articles not yet consumed, oldest first.
func (c *Collector) Pending(ctx context.Context, limit int) ([]Record, error) {
	return c.store.Pending(ctx, limit)
}

// Ack marks an article as consumed.
func (c *Collector) Ack(ctx context.Context, id string) error {
	return c.store.Ack(ctx, id)
}

// Stats returns the engine counters.
func (c *Collector) Stats() map[string]int64 {
	return c.engine.Stats().Snapshot()
}

// Close releases the browser, connections and storage handles.
func (c *Collector) Close() error {
	return errors.Join(c.client.Close(), c.store.Close())
}
