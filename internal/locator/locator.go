// Package locator discovers the pages of a site most likely to carry contact
// details: links found on the base page and in its structured data, sitemap
// entries, and conventional paths confirmed with HEAD.
package locator

import (
	"cmp"
	"context"
	"iter"
	"log/slog"
	"net/url"
	"slices"
	"strings"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/fetcher"
	"github.com/FranksOps/linkscout/internal/ldjson"
	"github.com/FranksOps/linkscout/pkg/domainutil"
	"github.com/PuerkitoBio/goquery"
)

// Source says how a candidate was found.
type Source string

const (
	SourceBase         Source = "base"
	SourceStructured   Source = "structured"
	SourceLink         Source = "link"
	SourceSitemap      Source = "sitemap"
	SourceConventional Source = "conventional"
)

// Candidate is a page worth feeding to the extractors.
type Candidate struct {
	URL        string
	Source     Source
	Confidence float64
	// Page is set for the base page, which is fetched while locating.
	Page *fetcher.Page
}

// DefaultPaths are probed when nothing better is known.
var DefaultPaths = []string{
	"/contact", "/contact-us", "/contactus", "/about", "/about-us", "/team",
	"/our-team", "/write-for-us", "/get-in-touch", "/support", "/impressum", "/kontakt",
}

// Config tunes discovery.
type Config struct {
	// MaxPages caps the number of candidates yielded, base page included.
	MaxPages   int
	MaxRetries int
	// RespectRobots drops candidates disallowed by robots.txt.
	RespectRobots bool
	// UseSitemap ranks contact-looking sitemap entries after page links.
	UseSitemap bool
	// UserAgent selects the robots.txt group; "*" by default.
	UserAgent string
	Paths     []string
}

// Locator finds contact page candidates for one site at a time. It is safe
// for concurrent use.
type Locator struct {
	cfg    Config
	fetch  *fetcher.Fetcher
	robots *robotsCache
	logger *slog.Logger
}

// New returns a Locator that fetches through f.
func New(f *fetcher.Fetcher, cfg Config, logger *slog.Logger) *Locator {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 8
	}
	if cfg.Paths == nil {
		cfg.Paths = DefaultPaths
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Locator{cfg: cfg, fetch: f, logger: logger}
	if cfg.RespectRobots {
		l.robots = newRobotsCache(f, cfg.UserAgent, logger)
	}
	return l
}

// FindContactPages lazily yields candidates for baseURL, highest confidence
// first: the base page itself, then links from its markup, then sitemap
// hints, then conventional paths that answer HEAD. Every call starts over.
// If the base page cannot be fetched, it is still yielded first with its
// failed Page, followed only by the conventional paths of the bare root
// domain.
func (l *Locator) FindContactPages(ctx context.Context, baseURL string) iter.Seq[Candidate] {
	return func(yield func(Candidate) bool) {
		seen := make(map[string]bool)
		n := 0
		emit := func(c Candidate) bool {
			key := contact.NormalizeURL(c.URL)
			if key == "" || seen[key] {
				return true
			}
			if c.Source != SourceBase && l.robots != nil && !l.robots.allowed(ctx, c.URL) {
				l.logger.Debug("candidate disallowed by robots.txt", "url", c.URL)
				return true
			}
			seen[key] = true
			n++
			if !yield(c) {
				return false
			}
			return n < l.cfg.MaxPages && ctx.Err() == nil
		}

		page := l.fetch.Fetch(ctx, baseURL, l.cfg.MaxRetries)
		if !page.OK {
			// The failed page is yielded so callers can record why.
			l.logger.Debug("base page unavailable, probing conventional paths", "url", baseURL, "err", page.Err)
			if !emit(Candidate{URL: baseURL, Source: SourceBase, Confidence: 1, Page: page}) {
				return
			}
			l.probePaths(ctx, strings.TrimSuffix(domainutil.RootOrigin(baseURL), "/"), seen, emit)
			return
		}

		base := page.FinalURL
		origin := strings.TrimSuffix(domainutil.RootURL(base), "/")
		if !emit(Candidate{URL: base, Source: SourceBase, Confidence: 1, Page: page}) {
			return
		}
		seen[contact.NormalizeURL(baseURL)] = true
		for _, c := range l.scan(page.HTML, base) {
			if !emit(c) {
				return
			}
		}
		if origin == "" || ctx.Err() != nil {
			return
		}

		if l.cfg.UseSitemap {
			hints := l.sitemapCandidates(ctx, base, origin)
			slices.SortStableFunc(hints, byConfidence)
			for _, c := range hints {
				if !emit(c) {
					return
				}
			}
		}

		l.probePaths(ctx, origin, seen, emit)
	}
}

// probePaths emits the conventional paths under origin that answer HEAD.
func (l *Locator) probePaths(ctx context.Context, origin string, seen map[string]bool, emit func(Candidate) bool) {
	if origin == "" {
		return
	}
	for _, p := range l.cfg.Paths {
		if ctx.Err() != nil {
			return
		}
		u := origin + p
		if seen[contact.NormalizeURL(u)] {
			continue
		}
		if l.robots != nil && !l.robots.allowed(ctx, u) {
			continue
		}
		if !l.fetch.Head(ctx, u) {
			continue
		}
		if !emit(Candidate{URL: u, Source: SourceConventional, Confidence: 0.3}) {
			return
		}
	}
}

// scan extracts same-site contact-looking links from the base page's anchors
// and JSON-LD.
func (l *Locator) scan(html, base string) []Candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		l.logger.Debug("base page unparsable", "url", base, "err", err)
		return nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}

	best := make(map[string]Candidate)
	var order []string
	add := func(raw string, src Source, conf float64) {
		abs := resolve(baseURL, raw)
		if abs == "" || !sameSite(base, abs) {
			return
		}
		key := contact.NormalizeURL(abs)
		if key == contact.NormalizeURL(base) {
			return
		}
		if prev, ok := best[key]; ok {
			if conf > prev.Confidence {
				best[key] = Candidate{URL: abs, Source: src, Confidence: conf}
			}
			return
		}
		best[key] = Candidate{URL: abs, Source: src, Confidence: conf}
		order = append(order, key)
	}

	ld := ldjson.FromDocument(doc)
	for _, u := range ld.ContactPages {
		add(u, SourceStructured, 0.95)
	}
	for _, cp := range ld.ContactPoints {
		if cp.URL != "" {
			add(cp.URL, SourceStructured, 0.9)
		}
	}
	for _, u := range ld.SameAs {
		if w := keywordWeight(pathOf(u)); w > 0 {
			add(u, SourceStructured, 0.5+0.4*w)
		}
	}

	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		text := strings.TrimSpace(s.Text())
		if text == "" {
			text, _ = s.Attr("title")
		}
		wHref := keywordWeight(pathOf(resolve(baseURL, href)))
		wText := keywordWeight(text)
		w := max(wHref, wText)
		if w == 0 {
			return
		}
		conf := 0.5 + 0.4*w
		if wHref > 0 && wText > 0 {
			conf += 0.05
		}
		add(href, SourceLink, min(conf, 0.94))
	})

	out := make([]Candidate, 0, len(order))
	for _, k := range order {
		out = append(out, best[k])
	}
	slices.SortStableFunc(out, byConfidence)
	return out
}

func byConfidence(a, b Candidate) int {
	return cmp.Compare(b.Confidence, a.Confidence)
}

// keywords maps contact-page vocabulary to a 0..1 weight.
var keywords = []struct {
	word   string
	weight float64
}{
	{"contact", 1}, {"kontakt", 1}, {"contacto", 1}, {"contatti", 1}, {"get-in-touch", 1},
	{"reach-us", 0.9}, {"write-for-us", 0.9}, {"writeforus", 0.9}, {"impressum", 0.9},
	{"guest-post", 0.8}, {"imprint", 0.8}, {"advertise", 0.7}, {"about", 0.7}, {"team", 0.7},
	{"leadership", 0.6}, {"staff", 0.6}, {"support", 0.5}, {"people", 0.5}, {"press", 0.5},
}

var skipExt = []string{".pdf", ".jpg", ".jpeg", ".png", ".gif", ".svg", ".zip", ".mp4", ".css", ".js"}

// keywordWeight scores a path or link text against the contact vocabulary.
func keywordWeight(s string) float64 {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0
	}
	for _, ext := range skipExt {
		if strings.HasSuffix(s, ext) {
			return 0
		}
	}
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	w := 0.0
	for _, k := range keywords {
		if k.weight > w && strings.Contains(s, k.word) {
			w = k.weight
		}
	}
	return w
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}

func pathOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Path)
}

func sameSite(a, b string) bool {
	return domainutil.SameSite(a, b)
}
