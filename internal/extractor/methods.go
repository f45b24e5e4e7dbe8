package extractor

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"

	"github.com/IshaanNene/finscrape/internal/parser"
	"github.com/IshaanNene/finscrape/internal/types"
)

// Built-in method names.
const (
	MethodReadability = "readability"
	MethodNews        = "news"
	MethodHeuristic   = "heuristic"
	MethodRendered    = "rendered"
	MethodDOM         = "dom"
)

func (e *Extractor) builtin(name string) (Method, bool) {
	switch name {
	case MethodReadability:
		return Method{Name: name, Run: e.readability}, true
	case MethodNews:
		return Method{Name: name, Run: e.news}, true
	case MethodHeuristic:
		return Method{Name: name, Run: e.heuristic}, true
	case MethodRendered:
		return Method{Name: name, Below: e.cfg.LowConfidence, Rendered: true, Run: e.renderedDOM}, true
	case MethodDOM:
		return Method{Name: name, Below: e.cfg.VeryLowConfidence, Run: e.dom}, true
	default:
		return Method{}, false
	}
}

func (e *Extractor) readability(ctx context.Context, p *Page) (string, error) {
	doc, err := p.Document(ctx, types.ModePlain)
	if err != nil {
		return "", err
	}
	html, err := doc.Html()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(p.URL())
	if err != nil {
		return "", err
	}

	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return "", err
	}
	content, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return tidy(article.TextContent), nil
	}
	return nodeText(content.Selection), nil
}

// news downloads the page with its own collector and reads the article body
// from JSON-LD, then from the articleBody microdata, then from <article>.
func (e *Extractor) news(ctx context.Context, p *Page) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c := colly.NewCollector(colly.AllowURLRevisit())
	ua := ""
	if e.userAgent != nil {
		ua = e.userAgent()
	}
	if ua != "" {
		c.UserAgent = ua
	} else {
		extensions.RandomUserAgent(c)
	}
	extensions.Referer(c)
	if e.transport != nil {
		c.WithTransport(e.transport)
	}
	if e.jar != nil {
		c.SetCookieJar(e.jar)
	}
	if p.Timeout() > 0 {
		c.SetRequestTimeout(p.Timeout())
	}

	var text string
	c.OnHTML("html", func(h *colly.HTMLElement) {
		var blocks []string
		h.DOM.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
			blocks = append(blocks, s.Text())
		})
		if a, ok := parser.ArticleFromJSONLD(blocks...); ok {
			text = tidy(a.Body)
			return
		}

		stripNoise(h.DOM, e.cfg.StripSelectors)
		for _, sel := range []string{`[itemprop="articleBody"]`, "article"} {
			body := h.DOM.Find(sel)
			if body.Length() == 0 {
				continue
			}
			if t := paragraphs(body, 0); t != "" {
				text = t
				return
			}
		}
	})

	var visitErr error
	c.OnError(func(r *colly.Response, err error) {
		visitErr = fmt.Errorf("status %d: %w", r.StatusCode, err)
	})

	if err := c.Visit(p.URL()); err != nil && visitErr == nil {
		visitErr = err
	}
	if visitErr != nil {
		return "", visitErr
	}
	if text == "" {
		return "", types.ErrEmptyContent
	}
	return text, nil
}

func (e *Extractor) heuristic(ctx context.Context, p *Page) (string, error) {
	doc, err := p.Document(ctx, types.ModePlain)
	if err != nil {
		return "", err
	}
	body := doc.Find("body")
	if body.Length() == 0 {
		return "", types.ErrEmptyContent
	}
	return pruneBlocks(body), nil
}

func (e *Extractor) renderedDOM(ctx context.Context, p *Page) (string, error) {
	doc, err := p.Document(ctx, types.ModeRendered)
	if err != nil {
		return "", err
	}
	return domText(doc.Selection, e.cfg.ContentSelectors, e.cfg.ParagraphMinLength, e.cfg.VeryLowConfidence), nil
}

func (e *Extractor) dom(ctx context.Context, p *Page) (string, error) {
	doc, err := p.Document(ctx, types.ModePlain)
	if err != nil {
		return "", err
	}
	return domText(doc.Selection, e.cfg.ContentSelectors, e.cfg.ParagraphMinLength, e.cfg.VeryLowConfidence), nil
}
