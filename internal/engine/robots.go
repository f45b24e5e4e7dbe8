package engine

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/IshaanNene/finscrape/internal/types"
)

// robotsAgent is the product token matched against robots.txt groups.
const robotsAgent = "finscrape"

// RobotsManager fetches and caches robots.txt per host for one pass.
type RobotsManager struct {
	enabled bool
	fetcher Fetcher
	timeout time.Duration
	mu      sync.Mutex
	cache   map[string]*robotstxt.Group
	logger  *slog.Logger
}

// NewRobotsManager creates a RobotsManager. A disabled manager allows
// everything without fetching.
func NewRobotsManager(enabled bool, fetcher Fetcher, timeout time.Duration, logger *slog.Logger) *RobotsManager {
	return &RobotsManager{
		enabled: enabled,
		fetcher: fetcher,
		timeout: timeout,
		cache:   make(map[string]*robotstxt.Group),
		logger:  logger.With("component", "robots"),
	}
}

// IsAllowed reports whether rawURL may be fetched. Unreachable robots.txt
// files allow everything.
func (rm *RobotsManager) IsAllowed(ctx context.Context, rawURL string) bool {
	if !rm.enabled {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return true
	}
	group := rm.group(ctx, u)
	if group == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path)
}

func (rm *RobotsManager) group(ctx context.Context, u *url.URL) *robotstxt.Group {
	origin := u.Scheme + "://" + u.Host

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if g, ok := rm.cache[origin]; ok {
		return g
	}

	g := rm.fetch(ctx, origin)
	rm.cache[origin] = g
	return g
}

func (rm *RobotsManager) fetch(ctx context.Context, origin string) *robotstxt.Group {
	robotsURL := origin + "/robots.txt"

	status := 200
	var body []byte
	resp, err := rm.fetcher.Get(ctx, robotsURL, types.ModePlain, rm.timeout)
	if err != nil {
		var fe *types.FetchError
		if !errors.As(err, &fe) || fe.StatusCode == 0 {
			rm.logger.Debug("robots.txt unavailable", "url", robotsURL, "error", err)
			return nil
		}
		status = fe.StatusCode
	} else {
		status = resp.StatusCode
		body = resp.Body
	}

	data, err := robotstxt.FromStatusAndBytes(status, body)
	if err != nil {
		rm.logger.Debug("robots.txt unparsable", "url", robotsURL, "error", err)
		return nil
	}
	return data.FindGroup(robotsAgent)
}
