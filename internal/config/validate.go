package config

import (
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/xpath"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Engine.MaxCandidates < 1 {
		return fmt.Errorf("engine.max_candidates must be >= 1, got %d", cfg.Engine.MaxCandidates)
	}
	if cfg.Engine.MinExtractedLength < 0 {
		return fmt.Errorf("engine.min_extracted_length must be >= 0, got %d", cfg.Engine.MinExtractedLength)
	}
	if err := validateDelay("engine", cfg.Engine.MinDelay, cfg.Engine.MaxDelay); err != nil {
		return err
	}
	if cfg.Engine.Interval < 0 {
		return fmt.Errorf("engine.interval must be >= 0")
	}

	if cfg.Fetcher.Timeout <= 0 {
		return fmt.Errorf("fetcher.timeout must be > 0")
	}
	if len(cfg.Fetcher.UserAgents) == 0 {
		return fmt.Errorf("fetcher.user_agents must not be empty")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Browser.Enabled {
		if cfg.Browser.ReadyTimeout <= 0 {
			return fmt.Errorf("browser.ready_timeout must be > 0")
		}
		if cfg.Browser.Settle < 0 {
			return fmt.Errorf("browser.settle must be >= 0")
		}
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	if cfg.Parser.MaxMatchesPerRule < 1 {
		return fmt.Errorf("parser.max_matches_per_rule must be >= 1, got %d", cfg.Parser.MaxMatchesPerRule)
	}
	if cfg.Parser.MinTitleLength < 0 || cfg.Parser.MaxTitleLength < cfg.Parser.MinTitleLength {
		return fmt.Errorf("parser title length bounds invalid: [%d, %d]", cfg.Parser.MinTitleLength, cfg.Parser.MaxTitleLength)
	}

	if err := validateExtractor(&cfg.Extractor); err != nil {
		return err
	}
	if err := validateFilter(&cfg.Filter); err != nil {
		return err
	}

	for _, s := range cfg.Sites {
		if s.Domain == "" {
			return fmt.Errorf("sites: domain must not be empty")
		}
		if err := validateDelay("sites["+s.Domain+"]", s.MinDelay, s.MaxDelay); err != nil {
			return err
		}
	}

	seen := make(map[string]bool, len(cfg.Targets))
	for i, t := range cfg.Targets {
		if t.Name == "" {
			return fmt.Errorf("targets[%d].name must not be empty", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true
		if err := ValidateURL(t.URL); err != nil {
			return fmt.Errorf("target %q: %w", t.Name, err)
		}
		if len(t.Links) == 0 {
			return fmt.Errorf("target %q: at least one link rule is required", t.Name)
		}
		for _, rule := range t.Links {
			if err := ValidateLinkRule(rule.Selector, rule.IsXPath()); err != nil {
				return fmt.Errorf("target %q: %w", t.Name, err)
			}
		}
	}

	validStorageTypes := map[string]bool{
		"memory": true, "jsonl": true, "mongo": true, "postgres": true,
	}
	if !validStorageTypes[cfg.Storage.Type] {
		return fmt.Errorf("storage.type %q is not supported (valid: memory, jsonl, mongo, postgres)", cfg.Storage.Type)
	}
	switch cfg.Storage.Type {
	case "jsonl":
		if cfg.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for jsonl storage")
		}
	case "mongo":
		if cfg.Storage.URI == "" {
			return fmt.Errorf("storage.uri is required for mongo storage")
		}
	case "postgres":
		if cfg.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for postgres storage")
		}
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}

func validateDelay(section string, lo, hi time.Duration) error {
	if lo < 0 || hi < lo {
		return fmt.Errorf("%s delay range invalid: min=%s max=%s", section, lo, hi)
	}
	return nil
}

func validateExtractor(cfg *ExtractorConfig) error {
	known := map[string]bool{"readability": true, "news": true, "heuristic": true, "rendered": true, "dom": true}
	for _, m := range cfg.Methods {
		if !known[m] {
			return fmt.Errorf("extractor.methods: unknown method %q", m)
		}
	}
	if cfg.VeryLowConfidence < 0 || cfg.LowConfidence < cfg.VeryLowConfidence {
		return fmt.Errorf("extractor thresholds invalid: low=%d very_low=%d", cfg.LowConfidence, cfg.VeryLowConfidence)
	}
	for _, sel := range append(append([]string(nil), cfg.ContentSelectors...), cfg.StripSelectors...) {
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("extractor: invalid selector %q: %w", sel, err)
		}
	}
	return nil
}

func validateFilter(cfg *FilterConfig) error {
	if cfg.MinContentLength < 0 {
		return fmt.Errorf("filter.min_content_length must be >= 0, got %d", cfg.MinContentLength)
	}
	for _, p := range append(append([]string(nil), cfg.Blacklist...), cfg.QualityPatterns...) {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("filter: invalid pattern %q: %w", p, err)
		}
	}
	for _, c := range cfg.Keywords {
		if c.Name == "" {
			return fmt.Errorf("filter.keywords: category name must not be empty")
		}
	}
	return nil
}

// ValidateLinkRule checks that a link-discovery selector compiles.
func ValidateLinkRule(selector string, isXPath bool) error {
	if selector == "" {
		return fmt.Errorf("empty link selector")
	}
	if isXPath {
		if _, err := xpath.Compile(selector); err != nil {
			return fmt.Errorf("invalid xpath %q: %w", selector, err)
		}
		return nil
	}
	if _, err := cascadia.ParseGroup(selector); err != nil {
		return fmt.Errorf("invalid css selector %q: %w", selector, err)
	}
	return nil
}

// ValidateURL checks if a URL string is valid for scraping.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}
