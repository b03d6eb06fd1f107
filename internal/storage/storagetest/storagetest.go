// Package storagetest holds the behaviour every storage.Backend must share.
package storagetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/storage"
)

func record(id, domain, state string, at time.Time, signals ...contact.Signal) *storage.Record {
	return &storage.Record{
		ID:        id,
		Domain:    domain,
		URL:       "https://" + domain + "/",
		State:     state,
		Contact:   contact.Merge(nil, signals, at),
		RunID:     "run-1",
		UpdatedAt: at,
	}
}

func email(v string) contact.Signal {
	return contact.Signal{Kind: contact.KindEmail, Value: v, Technique: contact.TechniqueEmailPattern, Tier: contact.TierPattern, Confidence: 0.9}
}

// Run exercises save, upsert-merge, get and query against a fresh backend.
func Run(t *testing.T, b storage.Backend) {
	t.Helper()
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := b.Get(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("Get(missing) err = %v, want ErrNotFound", err)
	}

	first := record("opp-1", "acme.io", "DONE", t0, email("hello@acme.io"))
	if err := b.Save(ctx, first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Save(ctx, record("opp-2", "quiet.io", "DONE", t0.Add(time.Hour))); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := b.Save(ctx, record("opp-3", "down.io", "FAILED", t0.Add(2*time.Hour))); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := b.Get(ctx, "opp-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Domain != "acme.io" || got.State != "DONE" || got.RunID != "run-1" {
		t.Errorf("record = %+v", got)
	}
	if !reflect.DeepEqual(got.Contact.Emails, []string{"hello@acme.io"}) {
		t.Errorf("emails = %v", got.Contact.Emails)
	}
	if !got.UpdatedAt.Equal(t0) {
		t.Errorf("updatedAt = %v, want %v", got.UpdatedAt, t0)
	}

	// Saving the same record again must not grow it.
	if err := b.Save(ctx, first); err != nil {
		t.Fatalf("re-Save: %v", err)
	}
	again, err := b.Get(ctx, "opp-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(again.Contact.Emails) != 1 || len(again.Contact.Provenance) != len(got.Contact.Provenance) {
		t.Errorf("re-save grew the record: %+v", again.Contact)
	}

	// A later run merges rather than replaces.
	later := record("opp-1", "acme.io", "DONE", t0.Add(3*time.Hour), email("sales@acme.io"))
	if err := b.Save(ctx, later); err != nil {
		t.Fatal(err)
	}
	merged, err := b.Get(ctx, "opp-1")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(merged.Contact.Emails, []string{"hello@acme.io", "sales@acme.io"}) {
		t.Errorf("merged emails = %v", merged.Contact.Emails)
	}

	all, err := b.Query(ctx, storage.Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if ids := idsOf(all); !reflect.DeepEqual(ids, []string{"opp-1", "opp-3", "opp-2"}) {
		t.Errorf("Query order = %v, want newest first", ids)
	}

	yes := true
	withContact, err := b.Query(ctx, storage.Filter{HasContact: &yes})
	if err != nil {
		t.Fatal(err)
	}
	if ids := idsOf(withContact); !reflect.DeepEqual(ids, []string{"opp-1"}) {
		t.Errorf("HasContact = %v", ids)
	}

	failed, err := b.Query(ctx, storage.Filter{State: "FAILED"})
	if err != nil {
		t.Fatal(err)
	}
	if ids := idsOf(failed); !reflect.DeepEqual(ids, []string{"opp-3"}) {
		t.Errorf("State = %v", ids)
	}

	since := t0.Add(90 * time.Minute)
	recent, err := b.Query(ctx, storage.Filter{Since: &since})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Errorf("Since returned %d records, want 2", len(recent))
	}

	paged, err := b.Query(ctx, storage.Filter{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if ids := idsOf(paged); !reflect.DeepEqual(ids, []string{"opp-3"}) {
		t.Errorf("paged = %v", ids)
	}

	byDomain, err := b.Query(ctx, storage.Filter{Domain: "quiet.io"})
	if err != nil {
		t.Fatal(err)
	}
	if ids := idsOf(byDomain); !reflect.DeepEqual(ids, []string{"opp-2"}) {
		t.Errorf("Domain = %v", ids)
	}
}

func idsOf(recs []*storage.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.ID)
	}
	return out
}
