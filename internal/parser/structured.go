package parser

import (
	"encoding/json"
	"strings"
)

// Article is the subset of schema.org article data the pipeline uses.
type Article struct {
	Type          string
	Headline      string
	Body          string
	Description   string
	DatePublished string
}

var articleTypes = func() map[string]bool {
	m := make(map[string]bool)
	for _, t := range []string{
		"Article", "NewsArticle", "ReportageNewsArticle", "AnalysisNewsArticle",
		"BackgroundNewsArticle", "OpinionNewsArticle", "ReviewNewsArticle",
		"BlogPosting", "LiveBlogPosting", "TechArticle", "SocialMediaPosting",
	} {
		m[strings.ToLower(t)] = true
	}
	return m
}()

// ParseJSONLD decodes one ld+json block into its objects. Top-level arrays
// and @graph containers are flattened.
func ParseJSONLD(raw string) []map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}

	var out []map[string]any
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				walk(e)
			}
		case map[string]any:
			out = append(out, t)
			if g, ok := t["@graph"]; ok {
				walk(g)
			}
		}
	}
	walk(v)
	return out
}

// ArticleFromJSONLD returns the first article-typed object carrying a body.
func ArticleFromJSONLD(blocks ...string) (Article, bool) {
	for _, raw := range blocks {
		for _, obj := range ParseJSONLD(raw) {
			if !isArticleType(obj["@type"]) {
				continue
			}
			a := Article{
				Type:          typeName(obj["@type"]),
				Headline:      stringField(obj, "headline"),
				Body:          strings.TrimSpace(stringField(obj, "articleBody")),
				Description:   stringField(obj, "description"),
				DatePublished: stringField(obj, "datePublished"),
			}
			if a.Body != "" {
				return a, true
			}
		}
	}
	return Article{}, false
}

func isArticleType(v any) bool {
	switch t := v.(type) {
	case string:
		return articleTypes[strings.ToLower(t)]
	case []any:
		for _, e := range t {
			if isArticleType(e) {
				return true
			}
		}
	}
	return false
}

func typeName(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		for _, e := range t {
			if s, ok := e.(string); ok {
				return s
			}
		}
	}
	return ""
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
