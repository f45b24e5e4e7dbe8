package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/finscrape/internal/types"
)

const prefix = "finscrape_"

// Snapshotter exposes a set of named counters, typically the engine's Stats.
type Snapshotter interface {
	Snapshot() map[string]int64
}

// Metrics tracks pass-level metrics and re-exports the engine counters.
type Metrics struct {
	// Pass metrics
	PassesTotal      atomic.Int64
	PassesFailed     atomic.Int64
	LastPassNew      atomic.Int64
	LastPassFound    atomic.Int64
	LastPassDuration atomic.Int64 // milliseconds
	LastPassUnix     atomic.Int64

	source Snapshotter
	logger *slog.Logger
}

// NewMetrics creates a Metrics instance reading engine counters from source.
func NewMetrics(source Snapshotter, logger *slog.Logger) *Metrics {
	return &Metrics{
		source: source,
		logger: logger.With("component", "metrics"),
	}
}

// ObservePass records the outcome of one orchestration pass.
func (m *Metrics) ObservePass(s *types.RunSummary) {
	if s == nil {
		return
	}
	m.PassesTotal.Add(1)
	if s.Failed() > 0 {
		m.PassesFailed.Add(1)
	}
	m.LastPassNew.Store(int64(s.New()))
	m.LastPassFound.Store(int64(s.Found()))
	m.LastPassDuration.Store(s.Duration.Milliseconds())
	m.LastPassUnix.Store(s.StartedAt.Unix())
}

type metric struct {
	name  string
	help  string
	kind  string
	value int64
}

func (m *Metrics) collect() []metric {
	out := []metric{
		{"passes_observed_total", "Orchestration passes observed", "counter", m.PassesTotal.Load()},
		{"passes_with_failures_total", "Passes with at least one failed target", "counter", m.PassesFailed.Load()},
		{"last_pass_new", "Records stored by the last pass", "gauge", m.LastPassNew.Load()},
		{"last_pass_found", "Candidates discovered by the last pass", "gauge", m.LastPassFound.Load()},
		{"last_pass_duration_ms", "Duration of the last pass in milliseconds", "gauge", m.LastPassDuration.Load()},
		{"last_pass_timestamp_seconds", "Start time of the last pass", "gauge", m.LastPassUnix.Load()},
	}
	if m.source == nil {
		return out
	}

	snap := m.source.Snapshot()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		kind := "counter"
		name := k + "_total"
		if strings.HasSuffix(k, "_seconds") {
			kind, name = "gauge", k
		}
		out = append(out, metric{name, "Engine counter " + k, kind, snap[k]})
	}
	return out
}

// ServeHTTP serves metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	for _, mt := range m.collect() {
		fmt.Fprintf(w, "# HELP %s%s %s\n", prefix, mt.name, mt.help)
		fmt.Fprintf(w, "# TYPE %s%s %s\n", prefix, mt.name, mt.kind)
		fmt.Fprintf(w, "%s%s %d\n", prefix, mt.name, mt.value)
	}
}

// Handler returns a mux serving metrics at path and a liveness probe at
// /health.
func (m *Metrics) Handler(path string) http.Handler {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "ok")
	})
	return mux
}

// StartServer serves metrics in the background until ctx is done.
func (m *Metrics) StartServer(ctx context.Context, port int, path string) {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           m.Handler(path),
		ReadHeaderTimeout: 5 * time.Second,
	}
	m.logger.Info("metrics server starting", "addr", srv.Addr, "path", path)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error("metrics server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
}
