// Package parser discovers article links on landing pages and reads
// structured article data embedded in pages.
package parser

import (
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/IshaanNene/finscrape/internal/config"
	"github.com/IshaanNene/finscrape/internal/types"
)

// SelectionPolicy decides how results from successive rules combine.
type SelectionPolicy int

const (
	// FirstMatchWins stops at the first rule that yields at least one
	// accepted link. Links from different page regions are never mixed.
	FirstMatchWins SelectionPolicy = iota
	// MergeAll evaluates every rule and concatenates their links.
	MergeAll
)

// match is one element selected by a rule, already mapped to its anchor.
type match struct {
	hasAnchor bool
	title     string
	href      string
}

// evaluator runs one rule over a parsed page and returns at most limit matches.
type evaluator interface {
	evaluate(rule types.LinkRule, limit int) ([]match, error)
}

// Discoverer interprets ordered link rules against landing pages.
type Discoverer struct {
	maxMatches int
	minTitle   int
	maxTitle   int
	policy     SelectionPolicy
	logger     *slog.Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithPolicy overrides the rule selection policy.
func WithPolicy(p SelectionPolicy) Option {
	return func(d *Discoverer) { d.policy = p }
}

// NewDiscoverer creates a Discoverer from parser settings.
func NewDiscoverer(cfg config.ParserConfig, logger *slog.Logger, opts ...Option) *Discoverer {
	d := &Discoverer{
		maxMatches: cfg.MaxMatchesPerRule,
		minTitle:   cfg.MinTitleLength,
		maxTitle:   cfg.MaxTitleLength,
		policy:     FirstMatchWins,
		logger:     logger.With("component", "link_discovery"),
	}
	if d.maxMatches <= 0 {
		d.maxMatches = 10
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover parses html and returns deduplicated candidates in first-seen
// order. It never fails: an unparseable page or no matching rule yields an
// empty list.
func (d *Discoverer) Discover(html string, rules []types.LinkRule, base *url.URL) []types.Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		d.logger.Warn("landing page parse failed", "error", err)
		return nil
	}
	return d.DiscoverDocument(doc, rules, base)
}

// DiscoverResponse runs discovery over a fetched landing page.
func (d *Discoverer) DiscoverResponse(resp *types.Response, rules []types.LinkRule) []types.Candidate {
	doc, err := resp.Document()
	if err != nil {
		d.logger.Warn("landing page parse failed", "url", resp.FinalURL, "error", err)
		return nil
	}
	return d.DiscoverDocument(doc, rules, resp.BaseURL())
}

// DiscoverDocument runs discovery over an already parsed page.
func (d *Discoverer) DiscoverDocument(doc *goquery.Document, rules []types.LinkRule, base *url.URL) []types.Candidate {
	css := &cssEvaluator{doc: doc}
	var xp *xpathEvaluator

	seen := make(map[string]bool)
	var out []types.Candidate

	for i, rule := range rules {
		var ev evaluator = css
		if rule.IsXPath() {
			if xp == nil {
				xp = newXPathEvaluator(doc)
			}
			ev = xp
		}

		matches, err := ev.evaluate(rule, d.maxMatches)
		if err != nil {
			d.logger.Warn("link rule skipped", "rule", i, "selector", rule.Selector, "error", err)
			continue
		}

		accepted := 0
		for _, m := range matches {
			c, ok := d.accept(m, base)
			if !ok {
				continue
			}
			accepted++
			if seen[c.URL] {
				continue
			}
			seen[c.URL] = true
			out = append(out, c)
		}

		d.logger.Debug("link rule evaluated",
			"rule", i,
			"selector", rule.Selector,
			"matches", len(matches),
			"accepted", accepted,
		)

		if d.policy == FirstMatchWins && accepted > 0 {
			break
		}
	}
	return out
}

// accept applies the per-match filters and resolves the URL.
func (d *Discoverer) accept(m match, base *url.URL) (types.Candidate, bool) {
	if !m.hasAnchor || m.href == "" {
		return types.Candidate{}, false
	}

	ref, err := url.Parse(m.href)
	if err != nil {
		return types.Candidate{}, false
	}
	resolved := ref
	if base != nil {
		resolved = base.ResolveReference(ref)
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return types.Candidate{}, false
	}
	if resolved.Host == "" {
		return types.Candidate{}, false
	}
	resolved.Fragment = ""

	n := utf8.RuneCountInString(m.title)
	if n < d.minTitle || n > d.maxTitle {
		return types.Candidate{}, false
	}
	return types.Candidate{Title: m.title, URL: resolved.String()}, true
}

// normalizeText collapses whitespace runs into single spaces.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
