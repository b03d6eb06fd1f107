package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/extract"
	"github.com/FranksOps/linkscout/internal/metrics"
	"github.com/FranksOps/linkscout/pkg/domainutil"
)

// run is the working state of one target.
type run struct {
	target  Target
	domain  string
	state   State
	signals []contact.Signal
	// found is the merge of signals so far, used for early stop and as the
	// read-only snapshot extractors see.
	found   *contact.ContactInfo
	details contact.ExtractionDetails
	pages   []*extract.Page
	logger  *slog.Logger
}

func (r *run) to(s State) {
	r.logger.Debug("state", "from", r.state, "to", s)
	r.state = s
}

func (r *run) add(sigs []contact.Signal, now time.Time) {
	if len(sigs) == 0 {
		return
	}
	r.signals = append(r.signals, sigs...)
	r.found = contact.Merge(r.found, sigs, now)
}

// enough is the early-stop rule: an email plus a social profile or form.
func (r *run) enough() bool {
	f := r.found
	return f != nil && len(f.Emails) > 0 && (len(f.SocialProfiles) > 0 || len(f.ContactForms) > 0)
}

// Process runs one target through the pipeline. It never panics and
// always returns a terminal state with a non-nil record.
func (e *Engine) Process(ctx context.Context, t Target) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, e.cfg.TargetDeadline)
	defer cancel()

	baseURL := strings.TrimSpace(t.URL)
	if baseURL == "" && t.Domain != "" {
		baseURL = "https://" + t.Domain
	}
	domain := t.Domain
	if domain == "" {
		domain = domainutil.RootDomainOf(baseURL)
	}

	r := &run{
		target: t,
		domain: domain,
		state:  StatePending,
		logger: e.logger.With("target", t.ID, "domain", domain),
	}

	err := e.locateAndExtract(ctx, r)
	if err == nil {
		err = e.fallback(ctx, r)
	}
	if err == nil && ctx.Err() != nil {
		err = interrupted(ctx)
	}

	r.to(StateMerging)
	rec := e.finish(r, err)

	res := Result{Target: t, Record: rec, State: StateDone, Err: err, Duration: time.Since(start)}
	if err != nil {
		res.State = StateFailed
		r.logger.Warn("target failed", "err", err, "emails", len(rec.Emails))
	} else {
		r.logger.Info("target done", "emails", len(rec.Emails), "social", len(rec.SocialProfiles), "forms", len(rec.ContactForms))
	}
	r.to(res.State)
	metrics.TargetsTotal.WithLabelValues(string(res.State)).Inc()
	metrics.TargetDuration.Observe(res.Duration.Seconds())
	return res
}

// locateAndExtract walks the locator's candidates, fetching and running the
// page extractors on each until the early-stop rule holds. Having no page at
// all is a target failure.
func (e *Engine) locateAndExtract(ctx context.Context, r *run) error {
	r.to(StateLocating)
	baseURL := strings.TrimSpace(r.target.URL)
	if baseURL == "" {
		baseURL = "https://" + r.domain
	}

	seen := make(map[string]bool)
	var lastErr string
	for c := range e.locate.FindContactPages(ctx, baseURL) {
		page := c.Page
		if page == nil {
			page = e.fetch.Fetch(ctx, c.URL, e.cfg.MaxRetries)
		}
		if !page.OK {
			lastErr = fmt.Sprintf("fetch %s: %s", c.URL, page.Err)
			r.details.NoteError(lastErr)
			continue
		}
		final := contact.NormalizeURL(page.FinalURL)
		if final == "" {
			final = page.FinalURL
		}
		if seen[final] {
			continue
		}
		seen[final] = true

		if r.state == StateLocating {
			r.to(StateExtract)
		}
		p := extract.NewPage(page.FinalURL, page.HTML)
		r.pages = append(r.pages, p)
		r.details.NotePage(page.FinalURL)

		for _, ex := range e.page {
			if r.enough() || ctx.Err() != nil {
				break
			}
			e.runExtractor(ctx, r, ex, &extract.Input{Domain: r.domain, Page: p, Pages: r.pages, Found: r.found})
		}
		if r.enough() || ctx.Err() != nil {
			break
		}
	}

	if len(r.pages) == 0 {
		if ctx.Err() != nil {
			return interrupted(ctx)
		}
		if lastErr == "" {
			lastErr = "no candidate pages"
		}
		return fmt.Errorf("locate pages for %s: %s", baseURL, lastErr)
	}
	return nil
}

// fallback spends the target's technique budget on target-scope extractors
// while no email has been found.
func (e *Engine) fallback(ctx context.Context, r *run) error {
	budget := e.cfg.FallbackTechniques
	if r.target.IsPriority {
		budget += e.cfg.PriorityExtraTechniques
	}
	for _, ex := range e.fallbacks {
		if budget <= 0 || ctx.Err() != nil {
			break
		}
		if r.found != nil && len(r.found.Emails) > 0 {
			break
		}
		budget--
		e.runExtractor(ctx, r, ex, &extract.Input{Domain: r.domain, Pages: r.pages, Found: r.found})
	}
	if ctx.Err() != nil {
		return interrupted(ctx)
	}
	return nil
}

// interrupted maps a done context to the reason stored on the record.
func interrupted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrDeadline
	}
	return ErrCanceled
}

// runExtractor runs one technique, converting panics and errors into
// ExtractionDetails entries.
func (e *Engine) runExtractor(ctx context.Context, r *run, ex extract.Extractor, in *extract.Input) {
	name := ex.Name()
	r.details.NoteAttempt(name)

	sigs, err := func() (sigs []contact.Signal, err error) {
		defer func() {
			if v := recover(); v != nil {
				err = fmt.Errorf("panic: %v", v)
			}
		}()
		return ex.Extract(ctx, in)
	}()

	if errors.Is(err, extract.ErrNotApplicable) {
		err = nil
	}
	metrics.RecordTechnique(name, len(sigs), err)
	if err != nil {
		r.logger.Warn("technique failed", "technique", name, "err", err)
		where := ""
		if in.Page != nil {
			where = " on " + in.Page.URL
		}
		r.details.NoteError(fmt.Sprintf("%s%s: %v", name, where, err))
	}
	r.add(sigs, e.now())
}

// finish merges everything gathered into the target's existing record and
// stamps the extraction details.
func (e *Engine) finish(r *run, err error) *contact.ContactInfo {
	now := e.now()
	rec := contact.Merge(r.target.Existing, r.signals, now)

	d := &rec.ExtractionDetails
	for _, a := range r.details.Attempted {
		d.NoteAttempt(a)
	}
	for _, p := range r.details.Pages {
		d.NotePage(p)
	}
	for _, m := range r.details.Errors {
		d.NoteError(m)
	}
	d.Normalized = true
	d.SourceVersion = e.cfg.SourceVersion
	d.LastUpdated = now.UTC()
	d.FailureReason = ""
	if err != nil {
		d.FailureReason = err.Error()
	}
	return rec
}
