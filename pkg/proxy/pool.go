// Package proxy rotates outbound requests across a list of proxies, benching
// proxies that fail repeatedly for a cooldown period.
package proxy

import (
	"bufio"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"
)

// ErrUnknownProxy is returned when reporting on a proxy not in the pool.
var ErrUnknownProxy = errors.New("proxy not in pool")

type entry struct {
	url       *url.URL
	failures  int
	successes int
	benchedTo time.Time
}

// Config defines settings for the Proxy Pool.
type Config struct {
	// MaxFailures consecutive failures bench a proxy.
	MaxFailures int
	// Cooldown is how long a benched proxy is skipped.
	Cooldown time.Duration
}

// Pool is a round-robin proxy rotation. It is safe for concurrent use.
type Pool struct {
	cfg Config

	mu      sync.Mutex
	entries []*entry
	index   map[string]*entry
	next    int
	now     func() time.Time
}

// NewPool creates an empty pool; zero config values get defaults.
func NewPool(cfg Config) *Pool {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	return &Pool{
		cfg:   cfg,
		index: make(map[string]*entry),
		now:   time.Now,
	}
}

// LoadFile adds one proxy per line from path, skipping blanks and # comments.
func (p *Pool) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open proxy list: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read proxy list: %w", err)
	}
	return p.Add(lines...)
}

// Add registers proxies; entries without a scheme default to http://.
// Duplicates are ignored.
func (p *Pool) Add(raw ...string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, r := range raw {
		if !strings.Contains(r, "://") {
			r = "http://" + r
		}
		u, err := url.Parse(r)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid proxy %q", r)
		}
		key := u.String()
		if _, dup := p.index[key]; dup {
			continue
		}
		e := &entry{url: u}
		p.entries = append(p.entries, e)
		p.index[key] = e
	}
	return nil
}

// Len returns the number of proxies, benched or not.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Next returns the next proxy that is not benched, or nil when the pool is
// empty or every proxy is cooling down.
func (p *Pool) Next() *url.URL {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	for range p.entries {
		e := p.entries[p.next]
		p.next = (p.next + 1) % len(p.entries)

		if e.benchedTo.IsZero() {
			return e.url
		}
		if now.After(e.benchedTo) {
			e.benchedTo = time.Time{}
			e.failures = 0
			return e.url
		}
	}
	return nil
}

// Report records the outcome of a request made through u. Failures
// accumulate until MaxFailures benches the proxy; a success forgives one
// failure.
func (p *Pool) Report(u *url.URL, ok bool) error {
	if u == nil {
		return ErrUnknownProxy
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	e, found := p.index[u.String()]
	if !found {
		return ErrUnknownProxy
	}

	if ok {
		e.successes++
		if e.failures > 0 {
			e.failures--
		}
		return nil
	}

	e.failures++
	if e.failures >= p.cfg.MaxFailures {
		e.benchedTo = p.now().Add(p.cfg.Cooldown)
	}
	return nil
}
