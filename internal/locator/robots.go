package locator

import (
	"context"
	"log/slog"
	"net/url"
	"sync"

	"github.com/FranksOps/linkscout/internal/fetcher"
	"github.com/temoto/robotstxt"
)

// robotsCache fetches and caches robots.txt per scheme://host. Unreachable
// or unparsable files allow everything.
type robotsCache struct {
	fetch  *fetcher.Fetcher
	agent  string
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*robotstxt.RobotsData
}

func newRobotsCache(f *fetcher.Fetcher, agent string, logger *slog.Logger) *robotsCache {
	if agent == "" {
		agent = "*"
	}
	return &robotsCache{
		fetch:  f,
		agent:  agent,
		logger: logger,
		cache:  make(map[string]*robotstxt.RobotsData),
	}
}

// allowed reports whether rawURL may be fetched.
func (r *robotsCache) allowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	data := r.get(ctx, u.Scheme+"://"+u.Host)
	if data == nil {
		return true
	}
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	return data.TestAgent(path, r.agent)
}

// sitemaps returns the Sitemap: lines of host's robots.txt.
func (r *robotsCache) sitemaps(ctx context.Context, origin string) []string {
	if data := r.get(ctx, origin); data != nil {
		return data.Sitemaps
	}
	return nil
}

func (r *robotsCache) get(ctx context.Context, origin string) *robotstxt.RobotsData {
	r.mu.RLock()
	data, ok := r.cache[origin]
	r.mu.RUnlock()
	if ok {
		return data
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if data, ok = r.cache[origin]; ok {
		return data
	}

	page := r.fetch.Get(ctx, origin+"/robots.txt", 0)
	if !page.OK {
		r.logger.Debug("robots.txt unavailable, allowing all", "origin", origin, "status", page.Status, "err", page.Err)
		r.cache[origin] = nil
		return nil
	}
	parsed, err := robotstxt.FromBytes([]byte(page.HTML))
	if err != nil {
		r.logger.Debug("robots.txt unparsable, allowing all", "origin", origin, "err", err)
		parsed = nil
	}
	r.cache[origin] = parsed
	return parsed
}
