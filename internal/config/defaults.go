package config

import (
	"time"

	"github.com/IshaanNene/finscrape/internal/types"
)

// DefaultUserAgents is the identity pool rotated by the plain fetcher.
var DefaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// DefaultBlacklist matches boilerplate that is never article text. Patterns
// are applied to the lower-cased title and content.
var DefaultBlacklist = []string{
	`the associated press is an independent global news organization`,
	`founded in \d{4}`,
	`remains the most trusted source`,
	`more than half the world's population sees`,
	`essential provider of the technology`,
	`vital to the news business`,
	`subscribe to our newsletter`,
	`follow us on social media`,
	`contact us for more information`,
	`copyright \d{4}`,
	`all rights reserved`,
	`privacy policy`,
	`terms of service`,
	`cookie policy`,
	`home\s+news\s+business`,
	`breaking news`,
	`latest news`,
	`trending now`,
	`click here to`,
	`read more about`,
	`learn more at`,
	`visit our website`,
}

// DefaultKeywords are the topical keyword categories.
var DefaultKeywords = []KeywordCategory{
	{Name: "stocks", Terms: []string{"stock", "shares", "equity", "market", "trading", "nasdaq", "dow", "s&p", "russell"}},
	{Name: "companies", Terms: []string{"apple", "tesla", "microsoft", "amazon", "google", "nvidia", "meta", "berkshire"}},
	{Name: "crypto", Terms: []string{"bitcoin", "cryptocurrency", "crypto", "ethereum", "blockchain", "defi"}},
	{Name: "fed", Terms: []string{"federal reserve", "fed", "powell", "interest rate", "monetary policy", "fomc"}},
	{Name: "economy", Terms: []string{"inflation", "gdp", "employment", "economic", "recession", "growth"}},
	{Name: "earnings", Terms: []string{"earnings", "revenue", "profit", "quarterly", "financial results"}},
	{Name: "geopolitics", Terms: []string{"trade war", "china", "tariff", "sanction", "oil", "energy"}},
}

// DefaultFinancialTerms are generic finance words counted in content and,
// double weighted, in titles.
var DefaultFinancialTerms = []string{
	"stock", "market", "price", "trade", "investment", "investor", "financial",
	"economy", "economic", "revenue", "profit", "loss", "nasdaq", "dow jones",
	"sp500", "wall street", "trading", "earnings", "billion", "million",
	"percent", "%", "shares", "ceo", "quarterly",
}

// DefaultQualityPatterns each contribute at most one point.
var DefaultQualityPatterns = []string{
	`\$\d+(?:\.\d+)?(?:\s*(?:billion|million|trillion))?`,
	`\d+(?:\.\d+)?%`,
	`\d{4}-\d{2}-\d{2}`,
	`q[1-4]\s+\d{4}`,
}

// DefaultContentSelectors are tried in order by the DOM heuristic.
var DefaultContentSelectors = []string{
	"article",
	".article",
	".content",
	".post-content",
	".entry-content",
	".story-body",
	".article-body",
	".body-text",
	".text-content",
	`[data-module="ArticleBody"]`,
	".article__content",
	".story-content",
	"main .content",
	".main-content",
	".primary-content",
}

// DefaultStripSelectors are removed from every page before text extraction.
var DefaultStripSelectors = []string{
	"script", "style", "noscript", "iframe", "nav", "header", "footer", "aside",
	".ad", ".advertisement", ".social-share", ".related-articles",
}

// DefaultMethods is the extraction order.
var DefaultMethods = []string{"readability", "news", "heuristic", "rendered", "dom"}

// DefaultSites is the per-domain pacing table.
var DefaultSites = []SiteConfig{
	{Domain: "bbc.com", MinDelay: 1 * time.Second, MaxDelay: 3 * time.Second, Timeout: 20 * time.Second},
	{Domain: "apnews.com", MinDelay: 2 * time.Second, MaxDelay: 4 * time.Second, Timeout: 25 * time.Second},
	{Domain: "npr.org", MinDelay: 1 * time.Second, MaxDelay: 2 * time.Second, Timeout: 15 * time.Second},
	{Domain: "finviz.com", MinDelay: 1 * time.Second, MaxDelay: 3 * time.Second, Timeout: 15 * time.Second},
	{Domain: "finance.yahoo.com", MinDelay: 2 * time.Second, MaxDelay: 5 * time.Second, Timeout: 20 * time.Second},
}

func css(selectors ...string) []types.LinkRule {
	rules := make([]types.LinkRule, len(selectors))
	for i, s := range selectors {
		rules[i] = types.LinkRule{Selector: s, Kind: types.SelectorCSS}
	}
	return rules
}

// DefaultTargets are the built-in sources.
var DefaultTargets = []TargetConfig{
	{
		Name:        "BBC Business",
		URL:         "https://www.bbc.com/business",
		Links:       css("article a", ".gs-c-promo-heading a", "h3 a", "h2 a"),
		Keywords:    []string{"stocks", "economy", "companies"},
		ContentType: "news",
	},
	{
		Name:        "AP News Business",
		URL:         "https://apnews.com/hub/business",
		Links:       css("h2 a", "h3 a", ".PagePromo-title a", "article a"),
		Keywords:    []string{"stocks", "fed", "economy", "companies"},
		ContentType: "news",
	},
	{
		Name:        "NPR Business",
		URL:         "https://www.npr.org/sections/business/",
		Links:       css("h2 a", "h3 a", ".item-info-wrap a", "article a"),
		Keywords:    []string{"economy", "fed", "companies"},
		ContentType: "news",
	},
	{
		Name:        "FINVIZ News",
		URL:         "https://finviz.com/news.ashx",
		Links:       css(".news-link-container a", ".news-link a", `td a[target="_blank"]`),
		Keywords:    []string{"stocks", "earnings", "companies"},
		ContentType: "financial_data",
	},
	{
		Name:        "Yahoo Finance",
		URL:         "https://finance.yahoo.com/news/",
		Links:       css("h3 a", "h2 a", ".js-content-viewer a", `[data-module="stream"] a`),
		Keywords:    []string{"stocks", "crypto", "earnings", "companies"},
		ContentType: "news",
		Render:      true,
	},
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			MaxCandidates:      3,
			MinExtractedLength: 100,
			RespectRobotsTxt:   false,
			MinDelay:           2 * time.Second,
			MaxDelay:           4 * time.Second,
		},
		Fetcher: FetcherConfig{
			Timeout:         20 * time.Second,
			UserAgents:      append([]string(nil), DefaultUserAgents...),
			AcceptLanguage:  "en-US,en;q=0.5",
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			BlockMarkers:    []string{"captcha", "are you a robot", "security check", "unusual traffic"},
		},
		Browser: BrowserConfig{
			Enabled:           false,
			Headless:          true,
			NoSandbox:         true,
			ReadyTimeout:      10 * time.Second,
			Settle:            3 * time.Second,
			NavigationTimeout: 30 * time.Second,
		},
		Proxy: ProxyConfig{
			Enabled:  false,
			Rotation: "round_robin",
		},
		Parser: ParserConfig{
			MaxMatchesPerRule: 10,
			MinTitleLength:    10,
			MaxTitleLength:    200,
		},
		Extractor: ExtractorConfig{
			Methods:            append([]string(nil), DefaultMethods...),
			LowConfidence:      500,
			VeryLowConfidence:  300,
			ParagraphMinLength: 30,
			ContentSelectors:   append([]string(nil), DefaultContentSelectors...),
			StripSelectors:     append([]string(nil), DefaultStripSelectors...),
		},
		Filter: FilterConfig{
			MinContentLength: 300,
			MinScore:         6,
			Blacklist:        append([]string(nil), DefaultBlacklist...),
			Keywords:         append([]KeywordCategory(nil), DefaultKeywords...),
			FinancialTerms:   append([]string(nil), DefaultFinancialTerms...),
			QualityPatterns:  append([]string(nil), DefaultQualityPatterns...),
		},
		Sites:   append([]SiteConfig(nil), DefaultSites...),
		Targets: append([]TargetConfig(nil), DefaultTargets...),
		Storage: StorageConfig{
			Type:     "jsonl",
			Path:     "./data",
			Database: "finscrape",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
