package fetcher

import (
	"log/slog"
	"math/rand"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IshaanNene/finscrape/internal/config"
)

// proxyCooldown is how long a failed proxy sits out before it is retried.
const proxyCooldown = 5 * time.Minute

// ProxyManager handles proxy rotation and failure tracking.
type ProxyManager struct {
	proxies  []*proxyEntry
	rotation string
	index    atomic.Int64
	mu       sync.RWMutex
	now      func() time.Time
	logger   *slog.Logger
}

type proxyEntry struct {
	URL      *url.URL
	FailedAt time.Time
	LastErr  error
}

// NewProxyManager creates a new ProxyManager from configuration.
func NewProxyManager(cfg *config.ProxyConfig, logger *slog.Logger) *ProxyManager {
	pm := &ProxyManager{
		proxies:  make([]*proxyEntry, 0, len(cfg.URLs)),
		rotation: cfg.Rotation,
		now:      time.Now,
		logger:   logger.With("component", "proxy_manager"),
	}

	for _, rawURL := range cfg.URLs {
		u, err := url.Parse(rawURL)
		if err != nil || u.Host == "" {
			pm.logger.Warn("invalid proxy URL", "url", rawURL, "error", err)
			continue
		}
		pm.proxies = append(pm.proxies, &proxyEntry{URL: u})
	}

	pm.logger.Info("proxy manager initialized", "count", len(pm.proxies), "rotation", cfg.Rotation)
	return pm
}

// Next returns the next healthy proxy URL based on the rotation strategy,
// or nil for a direct connection.
func (pm *ProxyManager) Next() *url.URL {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	healthy := pm.healthyProxies()
	if len(healthy) == 0 {
		return nil
	}

	switch pm.rotation {
	case "random":
		return healthy[rand.Intn(len(healthy))].URL
	default: // round_robin
		idx := (pm.index.Add(1) - 1) % int64(len(healthy))
		return healthy[idx].URL
	}
}

// MarkFailed takes a proxy out of rotation for the cooldown period.
func (pm *ProxyManager) MarkFailed(proxyURL *url.URL, err error) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	for _, p := range pm.proxies {
		if p.URL.String() == proxyURL.String() {
			p.FailedAt = pm.now()
			p.LastErr = err
			pm.logger.Warn("proxy marked unhealthy",
				"proxy", proxyURL.Host,
				"healthy", len(pm.healthyProxies()),
				"error", err,
			)
			return
		}
	}
}

func (pm *ProxyManager) healthyProxies() []*proxyEntry {
	now := pm.now()
	healthy := make([]*proxyEntry, 0, len(pm.proxies))
	for _, p := range pm.proxies {
		if p.FailedAt.IsZero() || now.Sub(p.FailedAt) >= proxyCooldown {
			healthy = append(healthy, p)
		}
	}
	return healthy
}
