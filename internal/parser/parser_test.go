package parser

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

var testLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

const landingHTML = `<!DOCTYPE html>
<html>
<head><title>Business</title></head>
<body>
    <nav><a href="/">Home</a><a href="/business">Business</a></nav>
    <section class="promo">
        <h3><a href="/news/fed-holds-rates">Fed holds rates steady amid inflation worries</a></h3>
        <h3><a href="https://other.example.com/markets/stocks-rally">Stocks rally as tech earnings beat forecasts</a></h3>
        <h3><a href="/news/oil-prices#comments">Oil prices climb on supply concerns in Asia</a></h3>
        <h3><a href="/news/fed-holds-rates">Fed holds rates steady amid inflation worries</a></h3>
        <h3><span>No link in this heading at all</span></h3>
        <h3><a href="javascript:void(0)">Subscribe for unlimited access today</a></h3>
        <h3><a>Anchor without any href attribute</a></h3>
    </section>
</body>
</html>`

func base(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func newTestDiscoverer(opts ...Option) *Discoverer {
	return NewDiscoverer(config.DefaultConfig().Parser, testLogger, opts...)
}

func TestDiscoverFirstMatchingRuleWins(t *testing.T) {
	d := newTestDiscoverer()
	rules := []types.LinkRule{
		{Selector: ".does-not-exist a"},
		{Selector: "h3"},
		{Selector: "nav a"},
	}

	got := d.Discover(landingHTML, rules, base(t, "https://www.example.com/business"))

	want := []types.Candidate{
		{Title: "Fed holds rates steady amid inflation worries", URL: "https://www.example.com/news/fed-holds-rates"},
		{Title: "Stocks rally as tech earnings beat forecasts", URL: "https://other.example.com/markets/stocks-rally"},
		{Title: "Oil prices climb on supply concerns in Asia", URL: "https://www.example.com/news/oil-prices"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d candidates, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestDiscoverNoDuplicateURLs(t *testing.T) {
	d := newTestDiscoverer(WithPolicy(MergeAll))
	rules := []types.LinkRule{{Selector: "h3 a"}, {Selector: "section a"}}

	got := d.Discover(landingHTML, rules, base(t, "https://www.example.com/"))
	seen := make(map[string]bool)
	for _, c := range got {
		if seen[c.URL] {
			t.Errorf("duplicate URL %s", c.URL)
		}
		seen[c.URL] = true
	}
	if len(got) != 3 {
		t.Errorf("got %d unique candidates, want 3", len(got))
	}
}

func TestDiscoverTitleLengthBoundaries(t *testing.T) {
	tests := []struct {
		length int
		want   bool
	}{
		{9, false},
		{10, true},
		{200, true},
		{201, false},
	}

	d := newTestDiscoverer()
	for _, tt := range tests {
		t.Run(fmt.Sprintf("len=%d", tt.length), func(t *testing.T) {
			// Multi-byte runes: lengths are counted in characters.
			title := strings.Repeat("é", tt.length)
			page := fmt.Sprintf(`<html><body><h2><a href="/a">%s</a></h2></body></html>`, title)
			got := d.Discover(page, []types.LinkRule{{Selector: "h2 a"}}, base(t, "https://example.com"))
			if (len(got) == 1) != tt.want {
				t.Errorf("title length %d: accepted=%v, want %v", tt.length, len(got) == 1, tt.want)
			}
		})
	}
}

func TestDiscoverEmptyRuleThenThreeLinks(t *testing.T) {
	page := `<html><body>
		<div class="story"><a href="/s/1">First business story headline</a></div>
		<div class="story"><a href="/s/2">Second business story headline</a></div>
		<div class="story"><a href="/s/3">Third business story headline</a></div>
	</body></html>`

	d := newTestDiscoverer()
	got := d.Discover(page, []types.LinkRule{
		{Selector: "article h2 a"},
		{Selector: ".story"},
	}, base(t, "https://news.example.com/"))

	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	for i, c := range got {
		want := fmt.Sprintf("https://news.example.com/s/%d", i+1)
		if c.URL != want {
			t.Errorf("candidate %d URL = %s, want %s", i, c.URL, want)
		}
	}
}

func TestDiscoverNoMatchesIsEmpty(t *testing.T) {
	d := newTestDiscoverer()
	got := d.Discover(landingHTML, []types.LinkRule{{Selector: "article a"}, {Selector: "//article//a", Kind: "xpath"}}, base(t, "https://example.com"))
	if len(got) != 0 {
		t.Errorf("expected no candidates, got %+v", got)
	}
}

func TestDiscoverLimitsMatchesPerRule(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, `<h2><a href="/story/%d">Headline number %02d about markets</a></h2>`, i, i)
	}
	b.WriteString("</body></html>")

	got := newTestDiscoverer().Discover(b.String(), []types.LinkRule{{Selector: "h2 a"}}, base(t, "https://example.com"))
	if len(got) != 10 {
		t.Errorf("got %d candidates, want the first 10", len(got))
	}
	if got[0].URL != "https://example.com/story/0" {
		t.Errorf("first candidate %s, want story/0", got[0].URL)
	}
}

func TestDiscoverXPathRuleWithAttributes(t *testing.T) {
	page := `<html><body>
		<ul class="feed">
			<li data-href="/x/1"><a title="Treasury yields climb after jobs report" href="/x/1">more</a></li>
			<li><a title="Bitcoin slips below key support level" href="/x/2">more</a></li>
		</ul>
	</body></html>`

	got := newTestDiscoverer().Discover(page, []types.LinkRule{
		{Selector: "//ul[@class='feed']/li", Kind: "xpath", TitleAttr: "title"},
	}, base(t, "https://example.com/feed"))

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if got[1].Title != "Bitcoin slips below key support level" || got[1].URL != "https://example.com/x/2" {
		t.Errorf("unexpected candidate %+v", got[1])
	}
}

func TestDiscoverInvalidRuleSkipped(t *testing.T) {
	got := newTestDiscoverer().Discover(landingHTML, []types.LinkRule{
		{Selector: "a["},
		{Selector: "h3 a"},
	}, base(t, "https://example.com"))
	if len(got) != 3 {
		t.Errorf("got %d candidates, want 3 after skipping the invalid rule", len(got))
	}
}

func TestDiscoverGroupedSelector(t *testing.T) {
	page := `<html><body>
<h2><a href="/lead/central-bank-decision">Central bank signals a pause in rate hikes</a></h2>
<h3><a href="/news/retail-sales">Retail sales beat expectations in September</a></h3>
<h4><a href="/news/ignored">Headline under a tag nobody selected</a></h4>
</body></html>`
	got := newTestDiscoverer().Discover(page, []types.LinkRule{{Selector: "h2 a, h3 a"}}, base(t, "https://example.com/"))
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2: %+v", len(got), got)
	}
	if got[0].URL != "https://example.com/lead/central-bank-decision" || got[1].URL != "https://example.com/news/retail-sales" {
		t.Errorf("candidates = %+v", got)
	}
}

func TestArticleFromJSONLD(t *testing.T) {
	a, ok := ArticleFromJSONLD(
		`{"@context":"https://schema.org","@type":"Organization","name":"Example"}`,
		`{"@graph":[{"@type":["NewsArticle"],"headline":"Rates hold","articleBody":"The Federal Reserve held rates.","datePublished":"2024-05-01"}]}`,
	)
	if !ok {
		t.Fatal("expected article")
	}
	if a.Body != "The Federal Reserve held rates." || a.Headline != "Rates hold" || a.Type != "NewsArticle" {
		t.Errorf("unexpected article %+v", a)
	}

	if _, ok := ArticleFromJSONLD(`{"@type":"WebPage","articleBody":"nope"}`, `not json`); ok {
		t.Error("non-article types must be ignored")
	}
}

func BenchmarkDiscover(b *testing.B) {
	d := newTestDiscoverer()
	rules := []types.LinkRule{{Selector: "article a"}, {Selector: "h3 a"}}
	u, _ := url.Parse("https://example.com")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		d.Discover(landingHTML, rules, u)
	}
}
