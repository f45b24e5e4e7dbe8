package config

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Source supplies the configuration snapshot used by a pass.
type Source interface {
	Current() *Config
}

type staticSource struct{ cfg *Config }

func (s staticSource) Current() *Config { return s.cfg }

// Static returns a Source that always yields cfg.
func Static(cfg *Config) Source { return staticSource{cfg: cfg} }

// Watcher holds the live configuration and swaps it atomically whenever
// the config file changes. Invalid edits are logged and ignored.
type Watcher struct {
	v        *viper.Viper
	current  atomic.Pointer[Config]
	override func(*Config)
	logger   *slog.Logger

	mu        sync.Mutex
	listeners []func(*Config)
}

// Watch loads the configuration at configPath and starts watching it.
// override, if non-nil, is applied to every loaded config (CLI flags).
func Watch(configPath string, override func(*Config), logger *slog.Logger) (*Watcher, error) {
	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		v:        v,
		override: override,
		logger:   logger.With("component", "config"),
	}
	cfg, err := w.load()
	if err != nil {
		return nil, err
	}
	w.current.Store(cfg)

	if file := v.ConfigFileUsed(); file != "" {
		v.OnConfigChange(w.reload)
		v.WatchConfig()
		w.logger.Debug("watching config file", "file", file)
	}
	return w, nil
}

// Current returns the latest valid configuration.
func (w *Watcher) Current() *Config { return w.current.Load() }

// OnChange registers fn to run after each successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.listeners = append(w.listeners, fn)
	w.mu.Unlock()
}

func (w *Watcher) load() (*Config, error) {
	cfg, err := decode(w.v)
	if err != nil {
		return nil, err
	}
	if w.override != nil {
		w.override(cfg)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (w *Watcher) reload(e fsnotify.Event) {
	cfg, err := w.load()
	if err != nil {
		w.logger.Warn("config reload rejected, keeping previous", "file", e.Name, "error", err)
		return
	}
	w.current.Store(cfg)
	w.logger.Info("config reloaded", "file", e.Name, "targets", len(cfg.Targets))

	w.mu.Lock()
	listeners := slices.Clone(w.listeners)
	w.mu.Unlock()
	for _, fn := range listeners {
		fn(cfg)
	}
}
