package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

// fakeFetcher serves fixed bodies per mode and counts calls.
type fakeFetcher struct {
	bodies map[types.FetchMode]string
	calls  map[types.FetchMode]int
}

func newFakeFetcher(plain string) *fakeFetcher {
	return &fakeFetcher{
		bodies: map[types.FetchMode]string{types.ModePlain: plain},
		calls:  make(map[types.FetchMode]int),
	}
}

func (f *fakeFetcher) Get(_ context.Context, rawURL string, mode types.FetchMode, _ time.Duration) (*types.Response, error) {
	f.calls[mode]++
	body, ok := f.bodies[mode]
	if !ok {
		return nil, &types.FetchError{URL: rawURL, Kind: types.FetchDriver, Err: types.ErrRenderDisabled}
	}
	req, err := types.NewRequest(rawURL)
	if err != nil {
		return nil, err
	}
	req.Mode = mode
	return types.NewBrowserResponse(req, []byte(body), rawURL, 0), nil
}

type recorder struct{ ran []string }

func (r *recorder) stub(name, text string, err error) Method {
	return Method{Name: name, Run: func(context.Context, *Page) (string, error) {
		r.ran = append(r.ran, name)
		return text, err
	}}
}

func defaultExtractorConfig() config.ExtractorConfig {
	return config.DefaultConfig().Extractor
}

func sentence(n int) string {
	return strings.TrimSpace(strings.Repeat("Markets rallied as bond yields eased. ", n))
}

func TestExtractFallsThroughToDOM(t *testing.T) {
	p1 := "The central bank held interest rates steady on Wednesday, citing cooling inflation and a softer labor market across most regions."
	p2 := "Treasury yields slipped after the decision while equities extended gains, with financial stocks leading the broader index higher."
	p3 := "Analysts expect policymakers to signal the timing of the first cut at the next meeting, depending on incoming consumer price data."
	page := `<html><head><title>Rates</title><script>var x = 1;</script></head><body>
<nav><a href="/">Home</a></nav>
<div class="story-body"><p>` + p1 + `</p><p>` + p2 + `</p><p>` + p3 + `</p></div>
<footer>Copyright</footer>
</body></html>`

	f := newFakeFetcher(page)
	e := New(defaultExtractorConfig(), f, testLogger)
	rendered, _ := e.builtin(MethodRendered)
	dom, _ := e.builtin(MethodDOM)

	rec := &recorder{}
	e.methods = []Method{
		rec.stub(MethodReadability, sentence(3), nil),
		rec.stub(MethodNews, "", errors.New("no article body")),
		rec.stub(MethodHeuristic, sentence(6), nil),
		rendered,
		dom,
	}

	got := e.Extract(context.Background(), "https://example.com/news/rates")
	want := p1 + "\n" + p2 + "\n" + p3
	if runeLen(want) < 300 {
		t.Fatalf("fixture too short: %d", runeLen(want))
	}
	if got.Method != MethodDOM {
		t.Fatalf("Method = %q, want %q", got.Method, MethodDOM)
	}
	if got.Text != want {
		t.Errorf("Text = %q, want %q", got.Text, want)
	}
	if f.calls[types.ModeRendered] != 0 {
		t.Errorf("rendered fetches = %d, want 0 when rendering is off", f.calls[types.ModeRendered])
	}
	if f.calls[types.ModePlain] != 1 {
		t.Errorf("plain fetches = %d, want 1", f.calls[types.ModePlain])
	}
}

func TestExtractGatesFallbacks(t *testing.T) {
	cfg := defaultExtractorConfig()

	tests := []struct {
		name      string
		first     int
		render    bool
		wantRan   []string
		wantBest  string
		renderLen int
	}{
		{name: "confident", first: 600, render: true, wantRan: []string{"first"}, wantBest: "first"},
		{name: "low confidence rendered", first: 400, render: true, renderLen: 450, wantRan: []string{"first", "rendered"}, wantBest: "rendered"},
		{name: "low confidence no render", first: 400, render: false, wantRan: []string{"first"}, wantBest: "first"},
		{name: "very low", first: 100, render: false, wantRan: []string{"first", "dom"}, wantBest: "dom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recorder{}
			render := rec.stub("rendered", strings.Repeat("r", tt.renderLen), nil)
			render.Below = cfg.LowConfidence
			render.Rendered = true
			dom := rec.stub("dom", strings.Repeat("d", 200), nil)
			dom.Below = cfg.VeryLowConfidence

			e := New(cfg, newFakeFetcher(""), testLogger,
				WithRender(tt.render),
				WithMethods(rec.stub("first", strings.Repeat("f", tt.first), nil), render, dom))

			got := e.Extract(context.Background(), "https://example.com/a")
			if strings.Join(rec.ran, ",") != strings.Join(tt.wantRan, ",") {
				t.Errorf("ran = %v, want %v", rec.ran, tt.wantRan)
			}
			if got.Method != tt.wantBest {
				t.Errorf("best = %q, want %q", got.Method, tt.wantBest)
			}
		})
	}
}

func TestExtractTieKeepsEarlier(t *testing.T) {
	rec := &recorder{}
	e := New(defaultExtractorConfig(), newFakeFetcher(""), testLogger, WithMethods(
		rec.stub("a", "ééééé", nil),
		rec.stub("b", "bbbbb", nil),
		rec.stub("c", "cccc", nil),
	))

	got := e.Extract(context.Background(), "https://example.com/a")
	if got.Method != "a" || got.Score() != 5 {
		t.Errorf("got %q (%d), want a (5)", got.Method, got.Score())
	}
}

func TestExtractAllMethodsFail(t *testing.T) {
	rec := &recorder{}
	e := New(defaultExtractorConfig(), newFakeFetcher(""), testLogger, WithMethods(
		rec.stub("a", "", errors.New("boom")),
		rec.stub("b", "", &types.FetchError{Kind: types.FetchTimeout, Err: types.ErrTimeout}),
	))

	got := e.Extract(context.Background(), "https://example.com/a")
	if !got.Empty() || got.Method != "" {
		t.Errorf("got %+v, want zero extraction", got)
	}
	if len(rec.ran) != 2 {
		t.Errorf("ran = %v, want both methods", rec.ran)
	}
}

func TestExtractSurvivesPanickingMethod(t *testing.T) {
	rec := &recorder{}
	broken := Method{Name: "broken", Run: func(context.Context, *Page) (string, error) {
		rec.ran = append(rec.ran, "broken")
		var blocks []string
		return blocks[3], nil
	}}
	e := New(defaultExtractorConfig(), newFakeFetcher(""), testLogger, WithMethods(
		broken,
		rec.stub("steady", sentence(10), nil),
	))

	got := e.Extract(context.Background(), "https://example.com/a")
	if got.Method != "steady" || got.Text != sentence(10) {
		t.Errorf("got %q (%d), want steady", got.Method, got.Score())
	}
	if len(rec.ran) != 2 {
		t.Errorf("ran = %v, want both methods", rec.ran)
	}
}

func TestExtractStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	e := New(defaultExtractorConfig(), newFakeFetcher(""), testLogger, WithMethods(rec.stub("a", "text", nil)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := e.Extract(ctx, "https://example.com/a"); !got.Empty() {
		t.Errorf("got %+v after cancel", got)
	}
	if len(rec.ran) != 0 {
		t.Errorf("ran = %v after cancel", rec.ran)
	}
}

func TestDefaultMethodsPreferStructuredBody(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("Shares of the lender rose after quarterly earnings beat forecasts. ", 20))
	page := fmt.Sprintf(`<html><head><title>Lender beats</title>
<script type="application/ld+json">{"@context":"https://schema.org","@type":"NewsArticle","headline":"Lender beats","articleBody":%q}</script>
</head><body><div class="story-text"><p>Subscribe to read the full story about the lender and its quarterly numbers.</p></div></body></html>`, body)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, page)
	}))
	defer srv.Close()

	f := newFakeFetcher(page)
	e := New(defaultExtractorConfig(), f, testLogger, WithUserAgent(func() string { return "finscrape-test" }))

	got := e.Extract(context.Background(), srv.URL+"/story")
	if got.Method != MethodNews {
		t.Fatalf("Method = %q, want %q", got.Method, MethodNews)
	}
	if got.Text != body {
		t.Errorf("Text = %q, want JSON-LD body", got.Text)
	}
	if f.calls[types.ModePlain] != 1 {
		t.Errorf("plain fetches = %d, want 1 shared fetch", f.calls[types.ModePlain])
	}
}

func TestNewsMethodReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	e := New(defaultExtractorConfig(), newFakeFetcher(""), testLogger)
	p := e.newPage(srv.URL + "/missing")
	if _, err := e.news(context.Background(), p); err == nil {
		t.Fatal("expected error for 410 response")
	}
}

type countingTransport struct {
	calls int
	base  http.RoundTripper
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls++
	return c.base.RoundTrip(r)
}

func TestNewsMethodUsesSharedTransport(t *testing.T) {
	body := sentence(12)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body><article><p>%s</p></article></body></html>`, body)
	}))
	defer srv.Close()

	rt := &countingTransport{base: http.DefaultTransport}
	e := New(defaultExtractorConfig(), newFakeFetcher(""), testLogger, WithTransport(rt))
	text, err := e.news(context.Background(), e.newPage(srv.URL+"/story"))
	if err != nil {
		t.Fatalf("news: %v", err)
	}
	if text != body {
		t.Errorf("text = %q", text)
	}
	if rt.calls != 1 {
		t.Errorf("transport calls = %d, want 1", rt.calls)
	}
}
