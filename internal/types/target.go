package types

import (
	"strings"
)

// Selector kinds understood by link discovery.
const (
	SelectorCSS   = "css"
	SelectorXPath = "xpath"
)

// LinkRule is one declarative link-discovery rule: a selector plus the
// mapping from the matched element to a candidate's title and URL.
type LinkRule struct {
	// Selector is a CSS selector or XPath expression.
	Selector string `mapstructure:"selector" yaml:"selector" json:"selector" bson:"selector"`

	// Kind is "css" (default) or "xpath".
	Kind string `mapstructure:"kind" yaml:"kind,omitempty" json:"kind,omitempty" bson:"kind,omitempty"`

	// TitleAttr reads the title from an anchor attribute instead of its text.
	TitleAttr string `mapstructure:"title_attr" yaml:"title_attr,omitempty" json:"title_attr,omitempty" bson:"title_attr,omitempty"`

	// URLAttr is the anchor attribute holding the link. Defaults to href.
	URLAttr string `mapstructure:"url_attr" yaml:"url_attr,omitempty" json:"url_attr,omitempty" bson:"url_attr,omitempty"`
}

// IsXPath reports whether the rule is an XPath rule.
func (r LinkRule) IsXPath() bool {
	return strings.EqualFold(r.Kind, SelectorXPath)
}

// Href returns the attribute holding the link target.
func (r LinkRule) Href() string {
	if r.URLAttr == "" {
		return "href"
	}
	return r.URLAttr
}

// Target is a configured source site.
type Target struct {
	ID          string     `json:"id" bson:"_id"`
	Name        string     `json:"name" bson:"name"`
	URL         string     `json:"url" bson:"url"`
	Links       []LinkRule `json:"links" bson:"links"`
	Keywords    []string   `json:"keywords,omitempty" bson:"keywords,omitempty"`
	ContentType string     `json:"content_type,omitempty" bson:"content_type,omitempty"`
	Active      bool       `json:"is_active" bson:"is_active"`
	Render      bool       `json:"render,omitempty" bson:"render,omitempty"`
}

// TargetID derives a stable identifier from a target name.
func TargetID(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
