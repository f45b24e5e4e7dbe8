package config

import (
	"strings"
	"time"

	"github.com/IshaanNene/finscrape/internal/types"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for finscrape.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"    yaml:"engine"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"   yaml:"fetcher"`
	Browser   BrowserConfig   `mapstructure:"browser"   yaml:"browser"`
	Proxy     ProxyConfig     `mapstructure:"proxy"     yaml:"proxy"`
	Parser    ParserConfig    `mapstructure:"parser"    yaml:"parser"`
	Extractor ExtractorConfig `mapstructure:"extractor" yaml:"extractor"`
	Filter    FilterConfig    `mapstructure:"filter"    yaml:"filter"`
	Sites     []SiteConfig    `mapstructure:"sites"     yaml:"sites"`
	Targets   []TargetConfig  `mapstructure:"targets"   yaml:"targets"`
	Storage   StorageConfig   `mapstructure:"storage"   yaml:"storage"`
	Logging   LoggingConfig   `mapstructure:"logging"   yaml:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"   yaml:"metrics"`
}

// EngineConfig controls the target orchestrator.
type EngineConfig struct {
	// MaxCandidates caps how many discovered links are processed per target per pass.
	MaxCandidates int `mapstructure:"max_candidates" yaml:"max_candidates"`
	// MinExtractedLength skips extractions shorter than this before filtering.
	MinExtractedLength int           `mapstructure:"min_extracted_length" yaml:"min_extracted_length"`
	RespectRobotsTxt   bool          `mapstructure:"respect_robots_txt"   yaml:"respect_robots_txt"`
	MinDelay           time.Duration `mapstructure:"min_delay"            yaml:"min_delay"`
	MaxDelay           time.Duration `mapstructure:"max_delay"            yaml:"max_delay"`
	Interval           time.Duration `mapstructure:"interval"             yaml:"interval"`
}

// FetcherConfig controls the plain HTTP fetcher.
type FetcherConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"           yaml:"timeout"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
	AcceptLanguage  string        `mapstructure:"accept_language"   yaml:"accept_language"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	BlockMarkers    []string      `mapstructure:"block_markers"     yaml:"block_markers"`
}

// BrowserConfig controls the rendered (headless browser) fetch mode.
type BrowserConfig struct {
	Enabled           bool          `mapstructure:"enabled"            yaml:"enabled"`
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Bin               string        `mapstructure:"bin"                yaml:"bin"`
	NoSandbox         bool          `mapstructure:"no_sandbox"         yaml:"no_sandbox"`
	ReadyTimeout      time.Duration `mapstructure:"ready_timeout"      yaml:"ready_timeout"`
	Settle            time.Duration `mapstructure:"settle"             yaml:"settle"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// ProxyConfig controls proxy rotation.
type ProxyConfig struct {
	Enabled  bool     `mapstructure:"enabled"  yaml:"enabled"`
	Rotation string   `mapstructure:"rotation" yaml:"rotation"`
	URLs     []string `mapstructure:"urls"     yaml:"urls"`
}

// ParserConfig controls link discovery.
type ParserConfig struct {
	MaxMatchesPerRule int `mapstructure:"max_matches_per_rule" yaml:"max_matches_per_rule"`
	MinTitleLength    int `mapstructure:"min_title_length"     yaml:"min_title_length"`
	MaxTitleLength    int `mapstructure:"max_title_length"     yaml:"max_title_length"`
}

// ExtractorConfig controls the multi-method extractor.
type ExtractorConfig struct {
	Methods            []string `mapstructure:"methods"              yaml:"methods"`
	LowConfidence      int      `mapstructure:"low_confidence"       yaml:"low_confidence"`
	VeryLowConfidence  int      `mapstructure:"very_low_confidence"  yaml:"very_low_confidence"`
	ParagraphMinLength int      `mapstructure:"paragraph_min_length" yaml:"paragraph_min_length"`
	ContentSelectors   []string `mapstructure:"content_selectors"    yaml:"content_selectors"`
	StripSelectors     []string `mapstructure:"strip_selectors"      yaml:"strip_selectors"`
}

// KeywordCategory is a named topical keyword set.
type KeywordCategory struct {
	Name  string   `mapstructure:"name"  yaml:"name"`
	Terms []string `mapstructure:"terms" yaml:"terms"`
}

// FilterConfig holds the relevance filter's thresholds and tables.
type FilterConfig struct {
	MinContentLength int               `mapstructure:"min_content_length" yaml:"min_content_length"`
	MinScore         int               `mapstructure:"min_score"          yaml:"min_score"`
	Blacklist        []string          `mapstructure:"blacklist"          yaml:"blacklist"`
	Keywords         []KeywordCategory `mapstructure:"keywords"           yaml:"keywords"`
	FinancialTerms   []string          `mapstructure:"financial_terms"    yaml:"financial_terms"`
	QualityPatterns  []string          `mapstructure:"quality_patterns"   yaml:"quality_patterns"`
}

// SiteConfig tunes request pacing for one domain. Domain matches the host
// and any of its subdomains.
type SiteConfig struct {
	Domain   string        `mapstructure:"domain"    yaml:"domain"`
	MinDelay time.Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay time.Duration `mapstructure:"max_delay" yaml:"max_delay"`
	Timeout  time.Duration `mapstructure:"timeout"   yaml:"timeout"`
}

// TargetConfig describes one source site.
type TargetConfig struct {
	Name        string           `mapstructure:"name"         yaml:"name"`
	URL         string           `mapstructure:"url"          yaml:"url"`
	Links       []types.LinkRule `mapstructure:"links"        yaml:"links"`
	Keywords    []string         `mapstructure:"keywords"     yaml:"keywords"`
	ContentType string           `mapstructure:"content_type" yaml:"content_type"`
	Active      *bool            `mapstructure:"active"       yaml:"active,omitempty"`
	Render      bool             `mapstructure:"render"       yaml:"render"`
}

// IsActive reports whether the target is enabled. Targets are active unless
// explicitly disabled.
func (t TargetConfig) IsActive() bool {
	return t.Active == nil || *t.Active
}

// Target converts the configuration entry into the shared target type.
func (t TargetConfig) Target() types.Target {
	links := make([]types.LinkRule, len(t.Links))
	copy(links, t.Links)
	return types.Target{
		ID:          types.TargetID(t.Name),
		Name:        t.Name,
		URL:         t.URL,
		Links:       links,
		Keywords:    append([]string(nil), t.Keywords...),
		ContentType: t.ContentType,
		Active:      t.IsActive(),
		Render:      t.Render,
	}
}

// StorageConfig selects and configures the record store.
type StorageConfig struct {
	Type     string `mapstructure:"type"     yaml:"type"`
	Path     string `mapstructure:"path"     yaml:"path"`
	URI      string `mapstructure:"uri"      yaml:"uri"`
	Database string `mapstructure:"database" yaml:"database"`
	DSN      string `mapstructure:"dsn"      yaml:"dsn"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// TargetList returns every configured target.
func (c *Config) TargetList() []types.Target {
	out := make([]types.Target, 0, len(c.Targets))
	for _, t := range c.Targets {
		out = append(out, t.Target())
	}
	return out
}

// Site returns the pacing entry for host, if one is configured. The longest
// matching domain wins.
func (c *Config) Site(host string) (SiteConfig, bool) {
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	var (
		best  SiteConfig
		found bool
	)
	for _, s := range c.Sites {
		d := strings.ToLower(strings.TrimPrefix(s.Domain, "www."))
		if host == d || strings.HasSuffix(host, "."+d) {
			if !found || len(d) > len(best.Domain) {
				best = s
				best.Domain = d
				found = true
			}
		}
	}
	return best, found
}

// Delay returns the [min, max] inter-request delay for host.
func (c *Config) Delay(host string) (time.Duration, time.Duration) {
	if s, ok := c.Site(host); ok && s.MaxDelay > 0 {
		return s.MinDelay, s.MaxDelay
	}
	return c.Engine.MinDelay, c.Engine.MaxDelay
}

// Timeout returns the per-call fetch timeout for host.
func (c *Config) Timeout(host string) time.Duration {
	if s, ok := c.Site(host); ok && s.Timeout > 0 {
		return s.Timeout
	}
	return c.Fetcher.Timeout
}

// RenderLanding reports whether the landing page of t is fetched in rendered mode.
func (c *Config) RenderLanding(t types.Target) bool {
	return c.Browser.Enabled && t.Render
}
