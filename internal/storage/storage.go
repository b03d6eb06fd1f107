// Package storage persists contact records keyed by opportunity id. Every
// backend upserts: saving a record for a known id merges it into the stored
// one with contact.Combine, so re-saving the same run changes nothing.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("record not found")

// Record is one stored contact document.
type Record struct {
	// ID is the opportunity id the record belongs to.
	ID      string               `json:"id"`
	Domain  string               `json:"domain"`
	URL     string               `json:"url"`
	State   string               `json:"state"`
	Contact *contact.ContactInfo `json:"contactInfo"`
	// RunID identifies the batch run that last wrote the record.
	RunID     string    `json:"runId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Filter allows querying for specific Records.
type Filter struct {
	Domain string
	State  string
	// HasContact selects records with (true) or without (false) any channel.
	HasContact *bool
	Since      *time.Time
	Limit      int
	Offset     int
}

// Backend defines the interface for storing and querying contact records.
type Backend interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Query(ctx context.Context, filter Filter) ([]*Record, error)
	Close() error
}

// Upsert returns the record to store when incoming is saved over stored,
// which may be nil. Scalar fields come from incoming; contacts are combined.
func Upsert(stored, incoming *Record) *Record {
	out := *incoming
	var prev *contact.ContactInfo
	if stored != nil {
		prev = stored.Contact
		if out.Domain == "" {
			out.Domain = stored.Domain
		}
		if out.URL == "" {
			out.URL = stored.URL
		}
	}
	out.Contact = contact.Combine(prev, incoming.Contact)
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = out.Contact.ExtractionDetails.LastUpdated
	}
	if out.UpdatedAt.IsZero() {
		out.UpdatedAt = time.Now().UTC()
	}
	return &out
}

// Match reports whether rec passes filter's predicates, ignoring paging.
// File backends filter in memory with it.
func Match(rec *Record, f Filter) bool {
	if f.Domain != "" && rec.Domain != f.Domain {
		return false
	}
	if f.State != "" && rec.State != f.State {
		return false
	}
	if f.HasContact != nil && rec.Contact.HasContact() != *f.HasContact {
		return false
	}
	if f.Since != nil && rec.UpdatedAt.Before(*f.Since) {
		return false
	}
	return true
}

// Page applies Offset and Limit to records already in result order.
func Page(recs []*Record, f Filter) []*Record {
	if f.Offset > 0 {
		if f.Offset >= len(recs) {
			return []*Record{}
		}
		recs = recs[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(recs) {
		recs = recs[:f.Limit]
	}
	return recs
}
