// Package engine runs the per-target contact discovery pipeline: locate
// pages, run extractors in priority order, merge, and report a terminal
// state for every target in a batch.
package engine

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/extract"
	"github.com/FranksOps/linkscout/internal/fetcher"
	"github.com/FranksOps/linkscout/internal/locator"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrDeadline is recorded when a target runs out of time.
	ErrDeadline = errors.New("target deadline exceeded")
	// ErrCanceled is recorded when the run is stopped before a target
	// finishes.
	ErrCanceled = errors.New("target canceled")
)

// State is a target's position in the pipeline.
type State string

const (
	StatePending  State = "PENDING"
	StateLocating State = "LOCATING_PAGES"
	StateExtract  State = "EXTRACTING"
	StateMerging  State = "MERGING"
	StateDone     State = "DONE"
	StateFailed   State = "FAILED"
)

// Terminal reports whether s is DONE or FAILED.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Target is one site to search.
type Target struct {
	ID         string
	Domain     string
	URL        string
	IsPriority bool
	// Existing is a previously stored record to merge into, if any.
	Existing *contact.ContactInfo
}

// Result is the outcome for one target. Record is never nil.
type Result struct {
	Target   Target
	Record   *contact.ContactInfo
	State    State
	Err      error
	Duration time.Duration
}

// PageLocator yields contact page candidates for a site.
type PageLocator interface {
	FindContactPages(ctx context.Context, baseURL string) iter.Seq[locator.Candidate]
}

// PageFetcher fetches candidates the locator did not fetch itself.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, maxRetries int) *fetcher.Page
}

// Config controls the worker pool and per-target budgets.
type Config struct {
	Workers    int
	MaxRetries int
	// TargetDeadline bounds one target's whole pipeline.
	TargetDeadline time.Duration
	// FallbackTechniques is how many target-level techniques (WHOIS, team
	// permutation) a normal target may spend when pages yield no email.
	FallbackTechniques int
	// PriorityExtraTechniques is added to FallbackTechniques for priority
	// targets.
	PriorityExtraTechniques int
	// SourceVersion is stamped into ExtractionDetails.
	SourceVersion string
	// OnResult, if set, is called from the worker goroutine as each target
	// finishes. It must be safe for concurrent use.
	OnResult func(Result)
}

// Engine processes targets. It is safe for concurrent use.
type Engine struct {
	cfg       Config
	locate    PageLocator
	fetch     PageFetcher
	page      []extract.Extractor
	fallbacks []extract.Extractor
	logger    *slog.Logger
	now       func() time.Time
}

// New builds an engine. Extractors keep their given order within each
// scope; page-scope ones run on every located page, target-scope ones run
// afterwards as fallbacks.
func New(loc PageLocator, f PageFetcher, extractors []extract.Extractor, cfg Config, logger *slog.Logger) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 5
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.TargetDeadline <= 0 {
		cfg.TargetDeadline = 2 * time.Minute
	}
	if cfg.FallbackTechniques <= 0 {
		cfg.FallbackTechniques = 1
	}
	if cfg.PriorityExtraTechniques < 0 {
		cfg.PriorityExtraTechniques = 0
	}
	if cfg.SourceVersion == "" {
		cfg.SourceVersion = contact.SourceVersion
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{cfg: cfg, locate: loc, fetch: f, logger: logger, now: time.Now}
	for _, ex := range extractors {
		if ex.Scope() == extract.ScopeTarget {
			e.fallbacks = append(e.fallbacks, ex)
		} else {
			e.page = append(e.page, ex)
		}
	}
	return e
}

// DefaultExtractors returns every technique in priority order. whois and
// verifier may be nil; a nil verifier leaves the team extractor recording
// people without guessing addresses.
func DefaultExtractors(whois extract.WhoisClient, verifier extract.Verifier, logger *slog.Logger) []extract.Extractor {
	out := []extract.Extractor{
		extract.NewEmail(),
		extract.NewSocial(),
		extract.NewForm(),
		extract.NewPhone(),
	}
	if whois != nil {
		out = append(out, extract.NewWhois(whois))
	}
	return append(out, extract.NewTeam(extract.TeamConfig{}, verifier, logger))
}

// Run processes targets on a bounded worker pool and returns one result
// per target, in input order. A failing target never affects its siblings.
// Targets not started before ctx is done come back FAILED.
func (e *Engine) Run(ctx context.Context, targets []Target) []Result {
	results := make([]Result, len(targets))
	jobs := make(chan int)

	var g errgroup.Group
	for i := 0; i < e.cfg.Workers; i++ {
		g.Go(func() error {
			for idx := range jobs {
				results[idx] = e.Process(ctx, targets[idx])
				if e.cfg.OnResult != nil {
					e.cfg.OnResult(results[idx])
				}
			}
			return nil
		})
	}

	for i := range targets {
		jobs <- i
	}
	close(jobs)
	_ = g.Wait()
	return results
}
