package locator

import (
	"context"
	"errors"
	"strings"

	"github.com/oxffaa/gopher-parse-sitemap"
)

var errEnough = errors.New("enough sitemap entries")

const (
	maxSitemapEntries = 5000
	maxNestedSitemaps = 3
)

// sitemapURLs reads one sitemap (or one level of sitemap index) and returns
// its page locations, capped at maxSitemapEntries.
func (l *Locator) sitemapURLs(ctx context.Context, sitemapURL string, depth int) []string {
	page := l.fetch.Get(ctx, sitemapURL, 0)
	if !page.OK {
		l.logger.Debug("sitemap unavailable", "url", sitemapURL, "err", page.Err)
		return nil
	}

	var urls []string
	err := sitemap.Parse(strings.NewReader(page.HTML), func(e sitemap.Entry) error {
		urls = append(urls, e.GetLocation())
		if len(urls) >= maxSitemapEntries {
			return errEnough
		}
		return nil
	})
	if len(urls) > 0 || (err != nil && errors.Is(err, errEnough)) {
		return urls
	}
	if depth > 0 {
		return nil
	}

	var nested []string
	_ = sitemap.ParseIndex(strings.NewReader(page.HTML), func(e sitemap.IndexEntry) error {
		nested = append(nested, e.GetLocation())
		if len(nested) >= maxNestedSitemaps {
			return errEnough
		}
		return nil
	})
	for _, n := range nested {
		if ctx.Err() != nil {
			break
		}
		urls = append(urls, l.sitemapURLs(ctx, n, depth+1)...)
	}
	return urls
}

// sitemapCandidates returns contact-looking same-site sitemap entries.
func (l *Locator) sitemapCandidates(ctx context.Context, base string, origin string) []Candidate {
	var sources []string
	if l.robots != nil {
		sources = l.robots.sitemaps(ctx, origin)
	}
	if len(sources) == 0 {
		sources = []string{origin + "/sitemap.xml"}
	}

	var out []Candidate
	for _, s := range sources {
		for _, u := range l.sitemapURLs(ctx, s, 0) {
			if !sameSite(base, u) {
				continue
			}
			if w := keywordWeight(pathOf(u)); w > 0 {
				out = append(out, Candidate{URL: u, Source: SourceSitemap, Confidence: 0.4 + w*0.2})
			}
		}
	}
	return out
}
