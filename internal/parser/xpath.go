package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/IshaanNene/finscrape/internal/types"
)

// xpathEvaluator evaluates XPath rules over the same node tree goquery parsed.
type xpathEvaluator struct {
	root *html.Node
}

func newXPathEvaluator(doc *goquery.Document) *xpathEvaluator {
	var root *html.Node
	if len(doc.Nodes) > 0 {
		root = doc.Nodes[0]
	}
	return &xpathEvaluator{root: root}
}

var descendantAnchor = xpath.MustCompile(".//a")

func (e *xpathEvaluator) evaluate(rule types.LinkRule, limit int) ([]match, error) {
	if e.root == nil {
		return nil, nil
	}
	expr, err := xpath.Compile(rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid xpath: %w", err)
	}

	nodes := htmlquery.QuerySelectorAll(e.root, expr)
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}

	out := make([]match, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, xpathMatch(n, rule))
	}
	return out, nil
}

func xpathMatch(n *html.Node, rule types.LinkRule) match {
	anchor := n
	if n.Type != html.ElementNode || n.Data != "a" {
		anchor = htmlquery.QuerySelector(n, descendantAnchor)
	}
	if anchor == nil {
		return match{}
	}

	m := match{hasAnchor: true, href: strings.TrimSpace(htmlquery.SelectAttr(anchor, rule.Href()))}
	if rule.TitleAttr != "" {
		m.title = normalizeText(htmlquery.SelectAttr(anchor, rule.TitleAttr))
	} else {
		m.title = normalizeText(htmlquery.InnerText(anchor))
	}
	return m
}
