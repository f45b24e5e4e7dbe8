package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/pipeline"
	"github.com/IshaanNene/finscrape/internal/storage"
	"github.com/IshaanNene/finscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const (
	relevantA = "Shares of the chipmaker jumped 8% on Wednesday after quarterly revenue of $35 billion " +
		"beat analyst estimates. The stock market rallied as investors cheered the earnings report, and " +
		"the company's CEO said demand for data center products would keep growing through the next " +
		"fiscal year. Trading volume on the Nasdaq was well above its monthly average."
	relevantB = "The bank reported quarterly profit of $4.2 billion, up 12% from a year earlier, as " +
		"trading revenue climbed and loan losses eased. Its shares rose in early trading on Wall Street " +
		"while the broader stock market was flat. The CEO told investors the economy remained resilient " +
		"and that the lender expects net interest income to hold steady this year."
	irrelevant = "The garden club met to discuss spring planting schedules. "
)

func articlePage(text string) string {
	return "<html><head><title>Story</title></head><body><nav>Menu</nav><article><p>" +
		text + "</p></article><footer>Footer</footer></body></html>"
}

const landingPage = `<html><body>
<h3><a href="/a1">Chipmaker stock jumps on earnings beat</a></h3>
<h3><a href="/a2?utm_source=home">Bank profit climbs as trading revenue rises</a></h3>
<h3><a href="/a3">Garden club plans the spring season</a></h3>
<h3><a href="/a4">A fourth story beyond the candidate cap</a></h3>
</body></html>`

// fakeFetcher serves fixed pages keyed by URL.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{pages: make(map[string]string), errs: make(map[string]error)}
}

func (f *fakeFetcher) Get(_ context.Context, rawURL string, mode types.FetchMode, _ time.Duration) (*types.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, rawURL)

	if err, ok := f.errs[rawURL]; ok {
		return nil, err
	}
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchNetwork, StatusCode: 404, Err: errors.New("not found")}
	}
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Mode = mode
	return types.NewBrowserResponse(req, []byte(body), rawURL, 0), nil
}

func (f *fakeFetcher) RenderEnabled() bool { return false }

func (f *fakeFetcher) fetched(rawURL string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == rawURL {
			n++
		}
	}
	return n
}

func goodSite(f *fakeFetcher) {
	f.pages["https://good.example/markets"] = landingPage
	f.pages["https://good.example/a1"] = articlePage(relevantA)
	f.pages["https://good.example/a2?utm_source=home"] = articlePage(relevantB)
	f.pages["https://good.example/a3"] = articlePage(strings.Repeat(irrelevant, 8))
	f.pages["https://good.example/a4"] = articlePage(relevantA + " Extra.")
}

func target(name, rawURL string) config.TargetConfig {
	return config.TargetConfig{
		Name:  name,
		URL:   rawURL,
		Links: []types.LinkRule{{Selector: "h3 a"}},
	}
}

func testConfig(targets ...config.TargetConfig) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Targets = targets
	cfg.Sites = nil
	cfg.Extractor.Methods = []string{"dom"}
	cfg.Engine.MinDelay = time.Second
	cfg.Engine.MaxDelay = 2 * time.Second
	return cfg
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func TestRunLandingFailureContinues(t *testing.T) {
	f := newFakeFetcher()
	goodSite(f)
	f.errs["https://broken.example/"] = &types.FetchError{URL: "https://broken.example/", Kind: types.FetchNetwork, Err: errors.New("connection refused")}

	store := storage.NewMemoryStore()
	rec := &sleepRecorder{}
	cfg := testConfig(target("Broken Site", "https://broken.example/"), target("Good Site", "https://good.example/markets"))
	e := New(config.Static(cfg), f, store, testLogger, WithSleep(rec.sleep))

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(summary.Results) != 2 {
		t.Fatalf("results = %d, want 2", len(summary.Results))
	}

	broken := summary.Results[0]
	if broken.Status != types.StatusFailed || broken.Found != 0 || broken.New != 0 || broken.Error == "" {
		t.Errorf("broken result = %+v", broken)
	}
	good := summary.Results[1]
	if good.Status != types.StatusSuccess || good.Found != 4 || good.New != 2 {
		t.Errorf("good result = %+v, want success found=4 new=2", good)
	}
	if f.fetched("https://good.example/a4") != 0 {
		t.Error("candidate beyond the cap was fetched")
	}

	// landing of the second target plus three candidates; the first request
	// of the pass is not delayed
	if len(rec.delays) != 4 {
		t.Errorf("sleeps = %d, want 4", len(rec.delays))
	}
	for _, d := range rec.delays {
		if d < time.Second || d > 2*time.Second {
			t.Errorf("delay %v outside [1s, 2s]", d)
		}
	}

	runs := store.Runs()
	if len(runs) != 2 || runs[0].Status != types.StatusFailed || runs[1].Status != types.StatusSuccess {
		t.Errorf("run logs = %+v", runs)
	}
	if runs[1].New != 2 || runs[1].FinishedAt.IsZero() {
		t.Errorf("good run log = %+v", runs[1])
	}

	snap := e.Stats().Snapshot()
	if snap["stored"] != 2 || snap["rejected"] != 1 || snap["targets_failed"] != 1 {
		t.Errorf("stats = %v", snap)
	}
}

func TestSecondPassStoresNothingNew(t *testing.T) {
	f := newFakeFetcher()
	goodSite(f)
	store := storage.NewMemoryStore()
	e := New(config.Static(testConfig(target("Good Site", "https://good.example/markets"))), f, store, testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	first, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if first.New() != 2 {
		t.Errorf("first pass new = %d, want 2", first.New())
	}
	if second.New() != 0 || second.Found() != 4 {
		t.Errorf("second pass new = %d found = %d, want 0 and 4", second.New(), second.Found())
	}
	if n := len(store.Records()); n != 2 {
		t.Errorf("records = %d, want 2", n)
	}
	if d := e.Stats().Snapshot()["duplicates"]; d != 2 {
		t.Errorf("duplicates = %d, want 2", d)
	}
}

// crashingStage panics on URLs containing bad and marks the rest stored.
type crashingStage struct{ bad string }

func (s crashingStage) Name() string { return "crashing" }

func (s crashingStage) Process(_ context.Context, a *pipeline.Article) (*pipeline.Article, error) {
	if strings.Contains(a.Candidate.URL, s.bad) {
		var m map[string]int
		m["boom"]++
	}
	a.Stored = true
	return a, nil
}

func TestPanickingCandidateDoesNotAbortPass(t *testing.T) {
	f := newFakeFetcher()
	goodSite(f)
	e := New(config.Static(testConfig(target("Good Site", "https://good.example/markets"))), f, storage.NewMemoryStore(), testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }),
		WithPipeline(func(*config.Config) (*pipeline.Pipeline, error) {
			return pipeline.New(testLogger).Use(crashingStage{bad: "/a1"}), nil
		}))

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r := summary.Results[0]
	if r.Failed() || r.New != 2 {
		t.Errorf("result = %+v, want success with 2 new", r)
	}
	if n := e.Stats().Snapshot()["errors"]; n != 1 {
		t.Errorf("errors = %d, want 1", n)
	}
}

func TestZeroLinksFailsTarget(t *testing.T) {
	f := newFakeFetcher()
	f.pages["https://empty.example/"] = "<html><body><p>No headlines today.</p></body></html>"
	e := New(config.Static(testConfig(target("Empty Site", "https://empty.example/"))), f, storage.NewMemoryStore(), testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	r := summary.Results[0]
	if !r.Failed() || r.Found != 0 || r.New != 0 || r.Error != types.ErrNoLinks.Error() {
		t.Errorf("result = %+v, want failed with %q", r, types.ErrNoLinks)
	}
}

func TestInactiveTargetsSkipped(t *testing.T) {
	f := newFakeFetcher()
	goodSite(f)
	off := false
	disabled := target("Disabled Site", "https://disabled.example/")
	disabled.Active = &off

	e := New(config.Static(testConfig(disabled, target("Good Site", "https://good.example/markets"))), f, storage.NewMemoryStore(), testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }))
	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summary.Results) != 1 || summary.Results[0].Target != "Good Site" {
		t.Errorf("results = %+v", summary.Results)
	}
	if f.fetched("https://disabled.example/") != 0 {
		t.Error("inactive target fetched")
	}
}

func TestRobotsDisallowedCandidateSkipped(t *testing.T) {
	f := newFakeFetcher()
	goodSite(f)
	f.pages["https://good.example/robots.txt"] = "User-agent: *\nDisallow: /a1\n"

	cfg := testConfig(target("Good Site", "https://good.example/markets"))
	cfg.Engine.RespectRobotsTxt = true
	e := New(config.Static(cfg), f, storage.NewMemoryStore(), testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	summary, err := e.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if summary.New() != 1 {
		t.Errorf("new = %d, want 1", summary.New())
	}
	if f.fetched("https://good.example/a1") != 0 {
		t.Error("disallowed candidate fetched")
	}
	if f.fetched("https://good.example/robots.txt") != 1 {
		t.Error("robots.txt not fetched exactly once")
	}
	if e.Stats().Snapshot()["disallowed"] != 1 {
		t.Errorf("disallowed = %d", e.Stats().Snapshot()["disallowed"])
	}
}

func TestRunCancelled(t *testing.T) {
	f := newFakeFetcher()
	goodSite(f)
	e := New(config.Static(testConfig(target("Good Site", "https://good.example/markets"))), f, storage.NewMemoryStore(), testLogger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := e.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if summary == nil || len(summary.Results) != 0 {
		t.Errorf("summary = %+v, want empty partial summary", summary)
	}
	if len(f.calls) != 0 {
		t.Errorf("fetches after cancel: %v", f.calls)
	}
}

func TestThrottle(t *testing.T) {
	rec := &sleepRecorder{}
	delays := func(host string) (time.Duration, time.Duration) {
		if host == "fixed.example" {
			return 3 * time.Second, 3 * time.Second
		}
		return time.Second, 4 * time.Second
	}
	th := NewThrottle(delays, rec.sleep)
	ctx := context.Background()

	if err := th.Wait(ctx, "a.example"); err != nil {
		t.Fatal(err)
	}
	if len(rec.delays) != 0 {
		t.Fatal("first request was delayed")
	}
	for i := 0; i < 50; i++ {
		if err := th.Wait(ctx, "a.example"); err != nil {
			t.Fatal(err)
		}
	}
	for _, d := range rec.delays {
		if d < time.Second || d > 4*time.Second {
			t.Fatalf("delay %v outside range", d)
		}
	}
	if d := th.Delay("fixed.example"); d != 3*time.Second {
		t.Errorf("fixed delay = %v", d)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := NewThrottle(delays, nil).Wait(cctx, "a.example"); !errors.Is(err, context.Canceled) {
		t.Errorf("first Wait after cancel = %v", err)
	}
	if err := Sleep(cctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep after cancel = %v", err)
	}
}

func TestCanonicalizeURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"HTTPS://Example.COM:443/news/story/", "https://example.com/news/story"},
		{"https://example.com/a?b=2&a=1#frag", "https://example.com/a?a=1&b=2"},
		{"https://example.com/a?utm_source=x&utm_medium=y&id=7", "https://example.com/a?id=7"},
		{"http://example.com:80", "http://example.com/"},
	}
	for _, tt := range tests {
		if got := CanonicalizeURL(tt.in); got != tt.want {
			t.Errorf("CanonicalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	d := NewDeduplicator()
	if !d.MarkSeen("https://example.com/a?utm_campaign=z") || d.MarkSeen("https://example.com/a/") {
		t.Error("tracking variants should collapse to one URL")
	}
	if d.MarkSeen("HTTPS://EXAMPLE.com/a#top") {
		t.Error("case and fragment variants should match the seen URL")
	}
}

func ExampleEngine_Run() {
	f := newFakeFetcher()
	goodSite(f)
	e := New(config.Static(testConfig(target("Good Site", "https://good.example/markets"))), f, storage.NewMemoryStore(), testLogger,
		WithSleep(func(context.Context, time.Duration) error { return nil }))

	summary, _ := e.Run(context.Background())
	for _, r := range summary.Results {
		fmt.Println(r.Target, r.Status, r.Found, r.New)
	}
	// Output: Good Site success 4 2
}
