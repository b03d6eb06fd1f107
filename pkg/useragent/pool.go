package useragent

import (
	"crypto/rand"
	"math/big"
	"net/http"
	"sync/atomic"
)

// Profile is a User-Agent together with the headers a real browser of that
// family sends alongside it.
type Profile struct {
	UserAgent      string
	Accept         string
	AcceptLanguage string
	// SecCHUA is only sent by Chromium-based browsers.
	SecCHUA  string
	Platform string
}

const (
	acceptChromium = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
	acceptGecko    = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"
	acceptSafari   = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
)

// DefaultProfiles is the fixed rotation pool of modern desktop browsers.
var DefaultProfiles = []Profile{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         acceptChromium,
		AcceptLanguage: "en-US,en;q=0.9",
		SecCHUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Windows"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         acceptChromium,
		AcceptLanguage: "en-US,en;q=0.9",
		SecCHUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"macOS"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		Accept:         acceptChromium,
		AcceptLanguage: "en-US,en;q=0.9",
		SecCHUA:        `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Windows"`,
	},
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
		Accept:         acceptGecko,
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:125.0) Gecko/20100101 Firefox/125.0",
		Accept:         acceptGecko,
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		Accept:         acceptSafari,
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		Accept:         acceptChromium,
		AcceptLanguage: "en-GB,en;q=0.9",
		SecCHUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Linux"`,
	},
}

// Pool rotates through browser profiles. It is safe for concurrent use.
type Pool struct {
	profiles []Profile
	counter  atomic.Uint64
}

// NewPool builds a pool from plain User-Agent strings, giving each generic
// browser headers. An empty slice yields DefaultProfiles.
func NewPool(uas []string) *Pool {
	if len(uas) == 0 {
		return NewProfilePool(nil)
	}
	profiles := make([]Profile, 0, len(uas))
	for _, ua := range uas {
		profiles = append(profiles, Profile{
			UserAgent:      ua,
			Accept:         acceptGecko,
			AcceptLanguage: "en-US,en;q=0.9",
		})
	}
	return NewProfilePool(profiles)
}

// NewProfilePool creates a pool from explicit profiles, falling back to
// DefaultProfiles when none are given.
func NewProfilePool(profiles []Profile) *Pool {
	if len(profiles) == 0 {
		profiles = DefaultProfiles
	}
	copied := make([]Profile, len(profiles))
	copy(copied, profiles)
	return &Pool{profiles: copied}
}

// Next returns the next profile in round-robin order.
func (p *Pool) Next() Profile {
	idx := p.counter.Add(1) - 1
	return p.profiles[idx%uint64(len(p.profiles))]
}

// Random returns a profile chosen with crypto/rand, falling back to Next.
func (p *Pool) Random() Profile {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(p.profiles))))
	if err != nil {
		return p.Next()
	}
	return p.profiles[n.Int64()]
}

// Len returns the number of profiles in the pool.
func (p *Pool) Len() int { return len(p.profiles) }

// Apply sets the profile's browser-like headers on h.
func (pr Profile) Apply(h http.Header) {
	h.Set("User-Agent", pr.UserAgent)
	h.Set("Accept", pr.Accept)
	h.Set("Accept-Language", pr.AcceptLanguage)
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	if pr.SecCHUA != "" {
		h.Set("Sec-CH-UA", pr.SecCHUA)
		h.Set("Sec-CH-UA-Mobile", "?0")
		h.Set("Sec-CH-UA-Platform", pr.Platform)
	}
}
