package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/IshaanNene/finscrape/internal/types"
)

// cssEvaluator evaluates CSS rules via goquery.
type cssEvaluator struct {
	doc *goquery.Document
}

func (e *cssEvaluator) evaluate(rule types.LinkRule, limit int) ([]match, error) {
	sel, err := cascadia.Compile(rule.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid css selector: %w", err)
	}

	var out []match
	e.doc.FindMatcher(sel).EachWithBreak(func(i int, s *goquery.Selection) bool {
		out = append(out, cssMatch(s, rule))
		return len(out) < limit
	})
	return out, nil
}

func cssMatch(s *goquery.Selection, rule types.LinkRule) match {
	anchor := s
	if goquery.NodeName(s) != "a" {
		anchor = s.Find("a").First()
	}
	if anchor.Length() == 0 {
		return match{}
	}

	m := match{hasAnchor: true}
	if href, ok := anchor.Attr(rule.Href()); ok {
		m.href = strings.TrimSpace(href)
	}
	if rule.TitleAttr != "" {
		title, _ := anchor.Attr(rule.TitleAttr)
		m.title = normalizeText(title)
	} else {
		m.title = normalizeText(anchor.Text())
	}
	return m
}
