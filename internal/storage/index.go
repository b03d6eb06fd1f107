package storage

import (
	"cmp"
	"slices"
)

// Index keeps the latest Record per id. The append-only file backends
// replay their file into one on open. It is not safe for concurrent use.
type Index struct {
	recs map[string]*Record
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{recs: make(map[string]*Record)}
}

// Get returns the record for id or ErrNotFound.
func (x *Index) Get(id string) (*Record, error) {
	r, ok := x.recs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	cp.Contact = r.Contact.Clone()
	return &cp, nil
}

// Put replaces the record for rec.ID.
func (x *Index) Put(rec *Record) {
	x.recs[rec.ID] = rec
}

// Len is the number of distinct ids.
func (x *Index) Len() int { return len(x.recs) }

// Query returns copies of matching records newest first, ties broken by id.
func (x *Index) Query(f Filter) []*Record {
	var out []*Record
	for _, r := range x.recs {
		if Match(r, f) {
			cp := *r
			out = append(out, &cp)
		}
	}
	slices.SortFunc(out, func(a, b *Record) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	out = Page(out, f)
	for _, r := range out {
		r.Contact = r.Contact.Clone()
	}
	return out
}
