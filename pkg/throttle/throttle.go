// Package throttle enforces per-root-domain politeness between outbound
// requests. A single State is shared by every worker of an engine run so
// that parallel workers never hammer the same host.
package throttle

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/FranksOps/linkscout/pkg/domainutil"
	"golang.org/x/time/rate"
)

// Config controls the spacing between requests.
type Config struct {
	// Interval is the minimum time between two requests to one root domain.
	Interval time.Duration
	// Jitter adds up to Jitter*Interval of random extra spacing (0.0 to 1.0).
	Jitter float64
	// GlobalRPS caps the request rate across all domains (0 = unlimited).
	GlobalRPS float64
}

type gate struct {
	mu   sync.Mutex
	last time.Time
}

// State is the DomainThrottleState: the last-request timestamp per root
// domain. Gates are created on first use and live as long as the State.
// It is safe for concurrent use.
type State struct {
	cfg    Config
	global *rate.Limiter

	mu    sync.Mutex
	gates map[string]*gate

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a State with the given configuration.
func New(cfg Config) *State {
	if cfg.Jitter < 0 {
		cfg.Jitter = 0
	} else if cfg.Jitter > 1 {
		cfg.Jitter = 1
	}

	s := &State{
		cfg:   cfg,
		gates: make(map[string]*gate),
		now:   time.Now,
		sleep: sleepCtx,
	}
	if cfg.GlobalRPS > 0 {
		s.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), 1)
	}
	return s
}

// Wait blocks until a request to host may be issued, then records the
// request time for host's root domain. It returns how long the caller was
// held back. Requests to one root domain are serialized; other domains are
// not affected. If ctx is cancelled while waiting, the timestamp is not
// updated and ctx.Err() is returned.
func (s *State) Wait(ctx context.Context, host string) (time.Duration, error) {
	start := s.now()

	if s.global != nil {
		if err := s.global.Wait(ctx); err != nil {
			return s.now().Sub(start), err
		}
	}

	key := domainutil.RootDomain(host)
	g := s.gateFor(key)

	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.last.IsZero() && s.cfg.Interval > 0 {
		required := s.cfg.Interval
		if s.cfg.Jitter > 0 {
			required += time.Duration(float64(s.cfg.Interval) * s.cfg.Jitter * rand.Float64())
		}
		if remaining := required - s.now().Sub(g.last); remaining > 0 {
			if err := s.sleep(ctx, remaining); err != nil {
				return s.now().Sub(start), err
			}
		}
	}

	g.last = s.now()
	return g.last.Sub(start), nil
}

// LastRequest returns the recorded last-request time for host's root domain.
func (s *State) LastRequest(host string) (time.Time, bool) {
	key := domainutil.RootDomain(host)

	s.mu.Lock()
	g, ok := s.gates[key]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last, !g.last.IsZero()
}

// Domains returns the number of root domains seen so far.
func (s *State) Domains() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gates)
}

func (s *State) gateFor(key string) *gate {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.gates[key]
	if !ok {
		g = &gate{}
		s.gates[key] = g
	}
	return g
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
