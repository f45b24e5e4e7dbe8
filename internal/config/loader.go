package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is the prefix for environment overrides, e.g. FINSCRAPE_STORAGE_DSN.
const EnvPrefix = "FINSCRAPE"

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	return decode(v)
}

func newViper(configPath string) (*viper.Viper, error) {
	// Secrets such as storage DSNs may live in a local .env file.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("finscrape")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".finscrape"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}
	return v, nil
}

// decode unmarshals into a fresh Config so list-valued settings from the
// file replace the defaults instead of merging element by element.
func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("engine.max_candidates", cfg.Engine.MaxCandidates)
	v.SetDefault("engine.min_extracted_length", cfg.Engine.MinExtractedLength)
	v.SetDefault("engine.respect_robots_txt", cfg.Engine.RespectRobotsTxt)
	v.SetDefault("engine.min_delay", cfg.Engine.MinDelay)
	v.SetDefault("engine.max_delay", cfg.Engine.MaxDelay)
	v.SetDefault("engine.interval", cfg.Engine.Interval)

	v.SetDefault("fetcher.timeout", cfg.Fetcher.Timeout)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)
	v.SetDefault("fetcher.accept_language", cfg.Fetcher.AcceptLanguage)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.tls_insecure", cfg.Fetcher.TLSInsecure)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.block_markers", cfg.Fetcher.BlockMarkers)

	v.SetDefault("browser.enabled", cfg.Browser.Enabled)
	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.no_sandbox", cfg.Browser.NoSandbox)
	v.SetDefault("browser.ready_timeout", cfg.Browser.ReadyTimeout)
	v.SetDefault("browser.settle", cfg.Browser.Settle)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.urls", cfg.Proxy.URLs)

	v.SetDefault("parser.max_matches_per_rule", cfg.Parser.MaxMatchesPerRule)
	v.SetDefault("parser.min_title_length", cfg.Parser.MinTitleLength)
	v.SetDefault("parser.max_title_length", cfg.Parser.MaxTitleLength)

	v.SetDefault("extractor.methods", cfg.Extractor.Methods)
	v.SetDefault("extractor.low_confidence", cfg.Extractor.LowConfidence)
	v.SetDefault("extractor.very_low_confidence", cfg.Extractor.VeryLowConfidence)
	v.SetDefault("extractor.paragraph_min_length", cfg.Extractor.ParagraphMinLength)
	v.SetDefault("extractor.content_selectors", cfg.Extractor.ContentSelectors)
	v.SetDefault("extractor.strip_selectors", cfg.Extractor.StripSelectors)

	v.SetDefault("filter.min_content_length", cfg.Filter.MinContentLength)
	v.SetDefault("filter.min_score", cfg.Filter.MinScore)
	v.SetDefault("filter.blacklist", cfg.Filter.Blacklist)
	v.SetDefault("filter.keywords", cfg.Filter.Keywords)
	v.SetDefault("filter.financial_terms", cfg.Filter.FinancialTerms)
	v.SetDefault("filter.quality_patterns", cfg.Filter.QualityPatterns)

	v.SetDefault("sites", cfg.Sites)
	v.SetDefault("targets", cfg.Targets)

	v.SetDefault("storage.type", cfg.Storage.Type)
	v.SetDefault("storage.path", cfg.Storage.Path)
	v.SetDefault("storage.uri", cfg.Storage.URI)
	v.SetDefault("storage.database", cfg.Storage.Database)
	v.SetDefault("storage.dsn", cfg.Storage.DSN)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
