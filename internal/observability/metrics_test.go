package observability

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/finscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

type staticStats map[string]int64

func (s staticStats) Snapshot() map[string]int64 { return s }

func TestMetricsExposition(t *testing.T) {
	m := NewMetrics(staticStats{"stored": 7, "duplicates": 2, "uptime_seconds": 30}, testLogger)
	m.ObservePass(&types.RunSummary{
		StartedAt: time.Unix(1700000000, 0),
		Duration:  1500 * time.Millisecond,
		Results: []types.TargetResult{
			{Target: "A", Status: types.StatusSuccess, Found: 3, New: 2},
			{Target: "B", Status: types.StatusFailed},
		},
	})

	srv := httptest.NewServer(m.Handler("/metrics"))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"finscrape_stored_total 7\n",
		"finscrape_duplicates_total 2\n",
		"# TYPE finscrape_uptime_seconds gauge\n",
		"finscrape_passes_observed_total 1\n",
		"finscrape_passes_with_failures_total 1\n",
		"finscrape_last_pass_new 2\n",
		"finscrape_last_pass_found 3\n",
		"finscrape_last_pass_duration_ms 1500\n",
		"finscrape_last_pass_timestamp_seconds 1700000000\n",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q", want)
		}
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/plain") {
		t.Errorf("Content-Type = %q", resp.Header.Get("Content-Type"))
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(NewMetrics(nil, testLogger).Handler(""))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "ok" {
		t.Errorf("health = %d %q", resp.StatusCode, body)
	}
}

func TestCollectMergesEngineCounters(t *testing.T) {
	m := NewMetrics(staticStats{"errors": 4}, testLogger)
	m.ObservePass(nil)
	snap := make(map[string]int64)
	for _, mt := range m.collect() {
		snap[mt.name] = mt.value
	}
	if snap["errors_total"] != 4 || snap["passes_observed_total"] != 0 {
		t.Errorf("snapshot = %v", snap)
	}
}
