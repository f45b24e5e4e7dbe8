package extractor

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Block scoring weights.
const (
	weightTextDensity = 3.0
	weightLinkDensity = -2.0
	weightTag         = 1.5
	weightHint        = 1.0
	weightTextLength  = 0.5

	// maxUnwrap bounds how many single-wrapper levels are descended.
	maxUnwrap = 4
)

var positiveHints = []string{
	"content", "article", "post", "entry", "body", "main", "text", "story",
}

var negativeHints = []string{
	"sidebar", "ad", "widget", "nav", "menu", "comment", "footer",
	"header", "banner", "popup", "modal", "cookie", "social", "share",
	"related", "recommend", "promo", "newsletter",
}

// pruneBlocks keeps the children of root that score above zero. When a
// single wrapper survives it is unwrapped and its children scored instead.
func pruneBlocks(root *goquery.Selection) string {
	for depth := 0; ; depth++ {
		var kept []*goquery.Selection
		root.Children().Each(func(_ int, el *goquery.Selection) {
			if blockScore(el) > 0 {
				kept = append(kept, el)
			}
		})
		if len(kept) == 1 && depth < maxUnwrap && kept[0].Children().Length() > 1 {
			root = kept[0]
			continue
		}

		parts := make([]string, 0, len(kept))
		for _, el := range kept {
			if t := nodeText(el); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, "\n")
	}
}

func blockScore(el *goquery.Selection) float64 {
	outer, err := goquery.OuterHtml(el)
	if err != nil || outer == "" {
		return 0
	}
	text := strings.TrimSpace(el.Text())
	textLen := utf8.RuneCountInString(text)
	if textLen == 0 {
		return 0
	}

	linkLen := 0
	el.Find("a").Each(func(_ int, a *goquery.Selection) {
		linkLen += utf8.RuneCountInString(strings.TrimSpace(a.Text()))
	})

	textDensity := float64(textLen) / float64(utf8.RuneCountInString(outer))
	linkDensity := float64(linkLen) / float64(textLen)

	return textDensity*weightTextDensity +
		linkDensity*weightLinkDensity +
		tagWeight(goquery.NodeName(el))*weightTag +
		hintWeight(el)*weightHint +
		math.Log10(float64(textLen)+1)*weightTextLength
}

func tagWeight(tag string) float64 {
	switch tag {
	case "article", "main", "section":
		return 5
	case "nav", "footer", "aside", "header", "form":
		return -5
	default:
		return 0
	}
}

// hintWeight scores class and id hints, counting each direction once.
func hintWeight(el *goquery.Selection) float64 {
	class, _ := el.Attr("class")
	id, _ := el.Attr("id")
	hints := strings.ToLower(class + " " + id)

	score := 0.0
	for _, p := range positiveHints {
		if strings.Contains(hints, p) {
			score += 3
			break
		}
	}
	for _, p := range negativeHints {
		if strings.Contains(hints, p) {
			score -= 3
			break
		}
	}
	return score
}

// domText runs the selector heuristic: the longest element text across the
// content selectors, falling back to long paragraphs when that is too short.
func domText(doc *goquery.Selection, selectors []string, minParagraph, floor int) string {
	best := ""
	for _, sel := range selectors {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := nodeText(s); runeLen(t) > runeLen(best) {
				best = t
			}
		})
	}
	if runeLen(best) >= floor {
		return best
	}
	if p := paragraphs(doc, minParagraph); runeLen(p) > runeLen(best) {
		return p
	}
	return best
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
