package contact

import (
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/social"
)

// PersonThreshold is the minimum confidence for a team member to become the
// record's contact person.
const PersonThreshold = 0.7

// DefaultConfidence maps a tier to the confidence used when a signal does
// not carry its own.
func DefaultConfidence(t Tier) float64 {
	switch t {
	case TierPattern:
		return 0.9
	case TierStructural:
		return 0.7
	case TierInferred:
		return 0.6
	}
	return 0.5
}

type merger struct {
	rec    *ContactInfo
	emails map[string]bool
	social map[string]int
	forms  map[string]bool
	phones map[string]bool
	prov   map[string]int
}

func newMerger(rec *ContactInfo) *merger {
	m := &merger{
		rec:    rec,
		emails: make(map[string]bool, len(rec.Emails)),
		social: make(map[string]int, len(rec.SocialProfiles)),
		forms:  make(map[string]bool, len(rec.ContactForms)),
		phones: make(map[string]bool, len(rec.PhoneNumbers)),
		prov:   make(map[string]int, len(rec.Provenance)),
	}
	for _, e := range rec.Emails {
		m.emails[strings.ToLower(e)] = true
	}
	for i, sp := range rec.SocialProfiles {
		m.social[socialKey(sp)] = i
	}
	for _, f := range rec.ContactForms {
		m.forms[keyFor(KindForm, f)] = true
	}
	for _, p := range rec.PhoneNumbers {
		m.phones[keyFor(KindPhone, p)] = true
	}
	for i, p := range rec.Provenance {
		m.prov[provKey(p.Kind, keyFor(p.Kind, p.Value), p.Technique)] = i
	}
	return m
}

func socialKey(sp SocialProfile) string {
	return social.Profile{Platform: sp.Platform, Username: sp.Username}.Key()
}

func provKey(kind Kind, key, technique string) string {
	return string(kind) + "\x00" + key + "\x00" + technique
}

// Merge folds signals into a copy of existing and returns it. Every field is
// a union deduplicated case-insensitively; social profiles dedupe by
// (platform, username). Re-merging signals already present changes nothing,
// including LastUpdated, so Merge(Merge(nil, s), s) equals Merge(nil, s).
// Confidence for a known value is only ever raised. Provenance is additive.
func Merge(existing *ContactInfo, signals []Signal, now time.Time) *ContactInfo {
	rec := existing.Clone()
	m := newMerger(rec)

	changed := false
	for _, s := range signals {
		if m.apply(s, now) {
			changed = true
		}
	}

	d := &rec.ExtractionDetails
	d.Normalized = true
	d.SourceVersion = SourceVersion
	if changed || d.LastUpdated.IsZero() {
		d.LastUpdated = now.UTC()
	}
	return rec
}

func (m *merger) apply(s Signal, now time.Time) bool {
	if s.Confidence <= 0 {
		s.Confidence = DefaultConfidence(s.Tier)
	}
	if s.Confidence > 1 {
		s.Confidence = 1
	}

	var key, display string
	changed := false

	switch s.Kind {
	case KindEmail:
		e := NormalizeEmail(s.Value)
		if e == "" || !AcceptableEmail(e) {
			return false
		}
		key, display = e, e
		if !m.emails[e] {
			m.emails[e] = true
			m.rec.Emails = append(m.rec.Emails, e)
			changed = true
		}

	case KindSocial:
		sp, ok := socialFromSignal(s)
		if !ok {
			return false
		}
		key = socialKey(sp)
		display = sp.Platform + ":" + sp.Username
		if i, seen := m.social[key]; seen {
			if m.rec.SocialProfiles[i].DisplayName == "" && sp.DisplayName != "" {
				m.rec.SocialProfiles[i].DisplayName = sp.DisplayName
				changed = true
			}
		} else {
			m.social[key] = len(m.rec.SocialProfiles)
			m.rec.SocialProfiles = append(m.rec.SocialProfiles, sp)
			changed = true
		}

	case KindForm:
		f := NormalizeURL(s.Value)
		if f == "" {
			return false
		}
		key, display = f, f
		if !m.forms[f] {
			m.forms[f] = true
			m.rec.ContactForms = append(m.rec.ContactForms, f)
			changed = true
		}

	case KindPhone:
		p := NormalizePhone(s.Value)
		if p == "" {
			return false
		}
		key, display = p, p
		if !m.phones[p] {
			m.phones[p] = true
			m.rec.PhoneNumbers = append(m.rec.PhoneNumbers, p)
			changed = true
		}

	case KindPerson:
		if s.Person == nil || strings.TrimSpace(s.Person.Name) == "" {
			return false
		}
		display = strings.TrimSpace(s.Person.Name)
		key = strings.ToLower(display)
		if m.rec.ContactPerson == nil && s.Confidence >= PersonThreshold {
			p := *s.Person
			p.Name = display
			m.rec.ContactPerson = &p
			changed = true
		}

	default:
		return false
	}

	pk := provKey(s.Kind, key, s.Technique)
	if i, seen := m.prov[pk]; seen {
		p := &m.rec.Provenance[i]
		if s.Confidence > p.Confidence {
			p.Confidence = s.Confidence
			if s.Tier > p.Tier {
				p.Tier = s.Tier
			}
			changed = true
		}
		return changed
	}

	m.prov[pk] = len(m.rec.Provenance)
	m.rec.Provenance = append(m.rec.Provenance, Provenance{
		Kind:       s.Kind,
		Value:      display,
		Technique:  s.Technique,
		Tier:       s.Tier,
		Confidence: s.Confidence,
		SourceURL:  s.SourceURL,
		Timestamp:  now.UTC(),
	})
	return true
}

func socialFromSignal(s Signal) (SocialProfile, bool) {
	if s.Social != nil && s.Social.Platform != "" && s.Social.Username != "" {
		sp := *s.Social
		sp.Platform = strings.ToLower(sp.Platform)
		return sp, true
	}
	p, ok := social.Parse(s.Value)
	if !ok {
		return SocialProfile{}, false
	}
	return SocialProfile{Platform: p.Platform, URL: p.URL, Username: p.Username}, true
}

// NoteAttempt records that technique ran, once.
func (d *ExtractionDetails) NoteAttempt(technique string) {
	d.Attempted = appendUnique(d.Attempted, technique)
}

// NotePage records a page that was fed to extractors, once.
func (d *ExtractionDetails) NotePage(url string) {
	d.Pages = appendUnique(d.Pages, url)
}

// NoteError records a human-readable failure line, once.
func (d *ExtractionDetails) NoteError(msg string) {
	d.Errors = appendUnique(d.Errors, msg)
}

func appendUnique(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}
