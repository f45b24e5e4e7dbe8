package filter

import "strings"

// Source classes attached to stored records.
const (
	SourceNewsMajor     = "news_major"
	SourceNewsWire      = "news_wire"
	SourceFinancialData = "financial_data"
	SourceNewsPublic    = "news_public"
	SourceUnknown       = "unknown"
)

var sourceClasses = []struct {
	needles     []string
	kind        string
	reliability string
}{
	{[]string{"bbc"}, SourceNewsMajor, "high"},
	{[]string{"reuters", "ap news"}, SourceNewsWire, "high"},
	{[]string{"finviz", "yahoo finance"}, SourceFinancialData, "medium"},
	{[]string{"npr"}, SourceNewsPublic, "high"},
}

// ClassifySource maps a target name to a source class and reliability.
func ClassifySource(name string) (kind, reliability string) {
	lower := strings.ToLower(name)
	for _, c := range sourceClasses {
		for _, n := range c.needles {
			if strings.Contains(lower, n) {
				return c.kind, c.reliability
			}
		}
	}
	return SourceUnknown, "medium"
}
