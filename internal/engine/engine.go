// Package engine orchestrates scraping passes over the configured targets.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/extractor"
	"github.com/IshaanNene/finscrape/internal/filter"
	"github.com/IshaanNene/finscrape/internal/parser"
	"github.com/IshaanNene/finscrape/internal/pipeline"
	"github.com/IshaanNene/finscrape/internal/storage"
	"github.com/IshaanNene/finscrape/internal/types"
)

// ErrBusy is returned when a pass is requested while one is running.
var ErrBusy = errors.New("a pass is already running")

// Fetcher retrieves pages for the engine and the extractor.
type Fetcher interface {
	Get(ctx context.Context, rawURL string, mode types.FetchMode, timeout time.Duration) (*types.Response, error)
	RenderEnabled() bool
}

// httpSharer is implemented by fetchers whose transport and cookies can be
// reused by extraction methods that download pages themselves.
type httpSharer interface {
	Transport() http.RoundTripper
	CookieJar() http.CookieJar
}

// PipelineFactory builds the candidate pipeline for one pass.
type PipelineFactory func(cfg *config.Config) (*pipeline.Pipeline, error)

// Engine runs orchestration passes.
type Engine struct {
	source      config.Source
	fetcher     Fetcher
	store       storage.Store
	newPipeline PipelineFactory
	sleep       SleepFunc
	stats       *Stats
	running     atomic.Bool
	logger      *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces the throttle's sleep function.
func WithSleep(fn SleepFunc) Option {
	return func(e *Engine) { e.sleep = fn }
}

// WithPipeline replaces the default candidate pipeline.
func WithPipeline(fn PipelineFactory) Option {
	return func(e *Engine) { e.newPipeline = fn }
}

// New creates an Engine. The caller owns fetcher and store.
func New(source config.Source, fetcher Fetcher, store storage.Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		source:  source,
		fetcher: fetcher,
		store:   store,
		sleep:   Sleep,
		stats:   NewStats(),
		logger:  logger.With("component", "engine"),
	}
	e.newPipeline = e.defaultPipeline
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stats returns the engine counters.
func (e *Engine) Stats() *Stats { return e.stats }

// defaultPipeline wires extract, length gate, normalize, filter and store.
func (e *Engine) defaultPipeline(cfg *config.Config) (*pipeline.Pipeline, error) {
	f, err := filter.New(cfg.Filter)
	if err != nil {
		return nil, err
	}

	opts := []extractor.Option{
		extractor.WithRender(cfg.Browser.Enabled && e.fetcher.RenderEnabled()),
		extractor.WithTimeouts(cfg.Timeout),
	}
	if ua, ok := e.fetcher.(interface{ NextUserAgent() string }); ok {
		opts = append(opts, extractor.WithUserAgent(ua.NextUserAgent))
	}
	if hc, ok := e.fetcher.(httpSharer); ok {
		if rt := hc.Transport(); rt != nil {
			opts = append(opts, extractor.WithTransport(rt), extractor.WithCookieJar(hc.CookieJar()))
		}
	}
	ex := extractor.New(cfg.Extractor, e.fetcher, e.logger, opts...)

	return pipeline.New(e.logger).
		Use(&pipeline.ExtractStage{Extractor: ex}).
		Use(&pipeline.MinLengthStage{Min: cfg.Engine.MinExtractedLength}).
		Use(&pipeline.NormalizeStage{}).
		Use(&pipeline.FilterStage{Filter: f}).
		Use(&pipeline.StoreStage{Gate: storage.NewGate(e.store, e.logger)}), nil
}

// pass holds the per-pass collaborators built from one config snapshot.
type pass struct {
	cfg        *config.Config
	discoverer *parser.Discoverer
	pipeline   *pipeline.Pipeline
	throttle   *Throttle
	robots     *RobotsManager
	seen       *Deduplicator
}

// Run performs one orchestration pass over the active targets. Targets run
// sequentially; a failing target is recorded and the pass moves on. When
// ctx is cancelled the partial summary is returned with ctx.Err().
func (e *Engine) Run(ctx context.Context) (*types.RunSummary, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer e.running.Store(false)

	summary := &types.RunSummary{StartedAt: time.Now()}
	defer func() { summary.Duration = time.Since(summary.StartedAt) }()

	cfg := e.source.Current()
	p, err := e.newPipeline(cfg)
	if err != nil {
		return summary, fmt.Errorf("build pipeline: %w", err)
	}

	if err := e.store.SyncTargets(ctx, cfg.TargetList()); err != nil {
		return summary, fmt.Errorf("sync targets: %w", err)
	}
	targets, err := e.store.ActiveTargets(ctx)
	if err != nil {
		return summary, fmt.Errorf("load targets: %w", err)
	}

	ps := &pass{
		cfg:        cfg,
		discoverer: parser.NewDiscoverer(cfg.Parser, e.logger),
		pipeline:   p,
		throttle:   NewThrottle(cfg.Delay, e.sleep),
		robots:     NewRobotsManager(cfg.Engine.RespectRobotsTxt, e.fetcher, cfg.Fetcher.Timeout, e.logger),
		seen:       NewDeduplicator(),
	}

	e.stats.Passes.Add(1)
	e.logger.Info("pass starting", "targets", len(targets), "storage", e.store.Name())

	for _, t := range targets {
		if ctx.Err() != nil {
			break
		}
		summary.Results = append(summary.Results, e.runTarget(ctx, ps, t))
	}

	e.logger.Info("pass finished",
		"targets", len(summary.Results),
		"found", summary.Found(),
		"new", summary.New(),
		"failed", summary.Failed(),
		"elapsed", time.Since(summary.StartedAt),
	)
	return summary, ctx.Err()
}

// runTarget records a run log around one target and converts its outcome
// into a TargetResult.
func (e *Engine) runTarget(ctx context.Context, ps *pass, t types.Target) types.TargetResult {
	e.stats.Targets.Add(1)
	run := &types.RunLog{
		ID:         storage.NewID(),
		TargetID:   t.ID,
		TargetName: t.Name,
		Status:     types.StatusRunning,
		StartedAt:  time.Now(),
	}
	if err := e.store.StartRun(ctx, run); err != nil {
		e.logger.Warn("start run failed", "target", t.Name, "error", err)
	}

	found, stored, err := e.scrapeTarget(ctx, ps, t)

	run.FinishedAt = time.Now()
	run.Duration = run.FinishedAt.Sub(run.StartedAt)
	run.Found, run.New = found, stored
	run.Status = types.StatusSuccess
	if err != nil {
		e.stats.TargetsFailed.Add(1)
		run.Status = types.StatusFailed
		run.Error = err.Error()
		e.logger.Error("target failed", "target", t.Name, "error", err)
	} else {
		e.logger.Info("target finished", "target", t.Name, "found", found, "new", stored, "elapsed", run.Duration)
	}
	if ferr := e.store.FinishRun(context.WithoutCancel(ctx), run); ferr != nil {
		e.logger.Warn("finish run failed", "target", t.Name, "error", ferr)
	}

	return types.TargetResult{
		Target:   t.Name,
		Status:   run.Status,
		Error:    run.Error,
		Found:    run.Found,
		New:      run.New,
		Duration: run.Duration,
	}
}

// scrapeTarget fetches the landing page, discovers candidates and runs the
// first engine.max_candidates of them through the pipeline. Landing and
// discovery failures report zero counts.
func (e *Engine) scrapeTarget(ctx context.Context, ps *pass, t types.Target) (found, stored int, err error) {
	host := hostOf(t.URL)
	if err := ps.throttle.Wait(ctx, host); err != nil {
		return 0, 0, err
	}

	mode := types.ModePlain
	if ps.cfg.RenderLanding(t) && e.fetcher.RenderEnabled() {
		mode = types.ModeRendered
	}
	resp, err := e.fetcher.Get(ctx, t.URL, mode, ps.cfg.Timeout(host))
	if err != nil {
		e.stats.FetchErrors.Add(1)
		return 0, 0, fmt.Errorf("fetch landing page: %w", err)
	}
	e.stats.PagesFetched.Add(1)
	e.stats.BytesDownloaded.Add(int64(len(resp.Body)))

	candidates := ps.discoverer.DiscoverResponse(resp, t.Links)
	if len(candidates) == 0 {
		return 0, 0, types.ErrNoLinks
	}
	found = len(candidates)
	if limit := ps.cfg.Engine.MaxCandidates; limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	e.logger.Debug("candidates discovered", "target", t.Name, "found", found, "processing", len(candidates))

	for _, c := range candidates {
		if ctx.Err() != nil {
			return found, stored, ctx.Err()
		}
		e.stats.Candidates.Add(1)

		if !ps.seen.MarkSeen(c.URL) {
			e.stats.CandidatesSeen.Add(1)
			e.logger.Debug("candidate already processed this pass", "url", c.URL)
			continue
		}
		if !ps.robots.IsAllowed(ctx, c.URL) {
			e.stats.Disallowed.Add(1)
			e.logger.Info("candidate disallowed by robots.txt", "url", c.URL)
			continue
		}
		if err := ps.throttle.Wait(ctx, hostOf(c.URL)); err != nil {
			return found, stored, err
		}

		if e.processCandidate(ctx, ps, t, c) {
			stored++
		}
	}
	return found, stored, nil
}

// processCandidate runs one candidate through the pipeline and reports
// whether it was stored. Every failure is logged and swallowed.
func (e *Engine) processCandidate(ctx context.Context, ps *pass, t types.Target, c types.Candidate) bool {
	a := &pipeline.Article{Target: t, Candidate: c}
	out, err := runPipeline(ctx, ps.pipeline, a)
	if err != nil {
		if ctx.Err() == nil {
			e.stats.Errors.Add(1)
			e.logger.Warn("candidate failed", "target", t.Name, "url", c.URL, "error", err)
		}
		return false
	}
	if !a.Extraction.Empty() {
		e.stats.Extracted.Add(1)
	}
	if out == nil {
		switch a.DropReason {
		case pipeline.ReasonDuplicate:
			e.stats.Duplicates.Add(1)
		default:
			e.stats.Rejected.Add(1)
		}
		e.logger.Info("candidate skipped", "target", t.Name, "url", c.URL, "reason", a.DropReason)
		return false
	}

	e.stats.Stored.Add(1)
	return out.Stored
}

// runPipeline recovers a panicking stage so one bad candidate cannot abort
// the pass.
func runPipeline(ctx context.Context, p *pipeline.Pipeline, a *pipeline.Article) (out *pipeline.Article, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("pipeline panicked: %v", r)
		}
	}()
	return p.Process(ctx, a)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
