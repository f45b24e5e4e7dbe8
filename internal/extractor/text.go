package extractor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// nodeText returns the text of every node in sel, one stripped text node
// per line, skipping blank nodes.
func nodeText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, strings.Join(strings.Fields(t), " "))
			}
			return
		case html.ElementNode:
			switch n.Data {
			case "script", "style", "noscript", "template":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, "\n")
}

// tidy trims every line, drops blank lines and collapses inner whitespace.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.Join(strings.Fields(l), " "); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// stripNoise removes non-content elements in place.
func stripNoise(doc *goquery.Selection, selectors []string) {
	for _, sel := range selectors {
		doc.Find(sel).Remove()
	}
}

// paragraphs joins the stripped text of <p> elements longer than minLen runes.
func paragraphs(sel *goquery.Selection, minLen int) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := strings.Join(strings.Fields(p.Text()), " ")
		if runeLen(t) > minLen {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n")
}
