// Package filter decides whether extracted text is financially relevant
// article content worth storing.
package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/IshaanNene/finscrape/internal/config"
)

// Rejection reasons.
const (
	ReasonTooShort    = "content_too_short"
	ReasonBlacklisted = "blacklisted"
	ReasonLowScore    = "low_score"
)

// Verdict is the outcome of evaluating one article.
type Verdict struct {
	Accepted bool
	Reason   string

	// Pattern is the blacklist pattern that matched, if any.
	Pattern string

	Relevance int
	Title     int
	Quality   int
	Final     int

	// KeywordMatches counts keyword hits per category, omitting zeroes.
	KeywordMatches map[string]int
}

type category struct {
	name  string
	terms []string
}

// Filter holds the compiled rule tables.
type Filter struct {
	minLength  int
	minScore   int
	blacklist  []*regexp.Regexp
	categories []category
	terms      []string
	quality    []*regexp.Regexp
}

// New compiles cfg into a Filter.
func New(cfg config.FilterConfig) (*Filter, error) {
	f := &Filter{
		minLength: cfg.MinContentLength,
		minScore:  cfg.MinScore,
		terms:     lowerAll(cfg.FinancialTerms),
	}

	var err error
	if f.blacklist, err = compileAll("blacklist", cfg.Blacklist); err != nil {
		return nil, err
	}
	if f.quality, err = compileAll("quality", cfg.QualityPatterns); err != nil {
		return nil, err
	}
	for _, kc := range cfg.Keywords {
		f.categories = append(f.categories, category{name: kc.Name, terms: lowerAll(kc.Terms)})
	}
	return f, nil
}

// IsRelevant reports whether the article passes the filter.
func (f *Filter) IsRelevant(title, content string) bool {
	return f.Evaluate(title, content).Accepted
}

// Evaluate scores an article. Length and blacklist checks reject before any
// scoring happens.
func (f *Filter) Evaluate(title, content string) Verdict {
	if utf8.RuneCountInString(content) < f.minLength {
		return Verdict{Reason: ReasonTooShort}
	}

	text := strings.ToLower(title + " " + content)
	for _, re := range f.blacklist {
		if re.MatchString(text) {
			return Verdict{Reason: ReasonBlacklisted, Pattern: re.String()}
		}
	}

	v := Verdict{KeywordMatches: make(map[string]int)}
	for _, c := range f.categories {
		n := countPresent(text, c.terms)
		if n > 0 {
			v.KeywordMatches[c.name] += n
		}
		v.Relevance += n
	}
	v.Relevance += countPresent(text, f.terms)
	v.Title = 2 * countPresent(strings.ToLower(title), f.terms)
	for _, re := range f.quality {
		if re.MatchString(text) {
			v.Quality++
		}
	}

	v.Final = v.Relevance + v.Title + v.Quality
	v.Accepted = v.Final >= f.minScore
	if !v.Accepted {
		v.Reason = ReasonLowScore
	}
	return v
}

// countPresent counts the terms that occur at least once in text.
func countPresent(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if t != "" && strings.Contains(text, t) {
			n++
		}
	}
	return n
}

func compileAll(table string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%s pattern %q: %w", table, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
