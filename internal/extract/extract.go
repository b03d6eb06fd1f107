// Package extract holds the contact extraction techniques. Each Extractor
// turns fetched pages into raw contact.Signals; merging and deduplication
// happen later in contact.Merge.
package extract

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/PuerkitoBio/goquery"
)

// ErrNotApplicable is returned by an extractor that has nothing to work on,
// such as the team extractor on a site without team pages.
var ErrNotApplicable = errors.New("technique not applicable")

// Scope says whether an extractor runs once per page or once per target.
type Scope int

const (
	ScopePage Scope = iota
	ScopeTarget
)

// Page is a fetched page. The parsed document is built once on demand.
type Page struct {
	URL  string
	HTML string

	once   sync.Once
	doc    *goquery.Document
	docErr error

	scanOnce sync.Once
	scan     *scanned
}

// NewPage wraps fetched HTML.
func NewPage(url, html string) *Page {
	return &Page{URL: url, HTML: html}
}

// Document parses the page with goquery, once.
func (p *Page) Document() (*goquery.Document, error) {
	p.once.Do(func() {
		p.doc, p.docErr = goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	})
	return p.doc, p.docErr
}

// Input is what an extractor sees.
type Input struct {
	// Domain is the target's root domain.
	Domain string
	// Page is the page under inspection for ScopePage extractors.
	Page *Page
	// Pages are all pages fetched for the target so far.
	Pages []*Page
	// Found is a read-only snapshot of what has been merged so far.
	Found *contact.ContactInfo
}

// Extractor is one contact discovery technique.
type Extractor interface {
	// Name is the technique name recorded in provenance.
	Name() string
	Tier() contact.Tier
	Scope() Scope
	Extract(ctx context.Context, in *Input) ([]contact.Signal, error)
}

// pagesOf returns the pages an extractor should look at.
func pagesOf(in *Input) []*Page {
	if in.Page != nil {
		return []*Page{in.Page}
	}
	return in.Pages
}

func signal(kind contact.Kind, value, technique string, tier contact.Tier, conf float64, source string) contact.Signal {
	return contact.Signal{Kind: kind, Value: value, Technique: technique, Tier: tier, Confidence: conf, SourceURL: source}
}
