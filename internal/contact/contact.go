// Package contact defines the canonical ContactInfo record produced for each
// target and the signals extractors emit before they are merged into it.
package contact

import (
	"time"
)

// SourceVersion identifies the record schema written by this engine.
const SourceVersion = "linkscout/1"

// Kind classifies a signal's value.
type Kind string

const (
	KindEmail  Kind = "email"
	KindSocial Kind = "social"
	KindForm   Kind = "form"
	KindPhone  Kind = "phone"
	KindPerson Kind = "person"
)

// Tier is the implicit confidence tier of a technique.
type Tier int

const (
	// TierPattern is a direct pattern match in page content.
	TierPattern Tier = 1
	// TierStructural is a structural heuristic (forms, team pages, registries).
	TierStructural Tier = 2
	// TierInferred is generated and then verified.
	TierInferred Tier = 3
)

// Technique names recorded in provenance.
const (
	TechniqueEmailPattern = "email_pattern"
	TechniqueSocial       = "social_profile"
	TechniqueContactForm  = "contact_form"
	TechniquePhone        = "phone"
	TechniqueWhois        = "whois"
	TechniqueTeam         = "team_permutation"
	TechniqueLegacy       = "legacy"
)

// SocialProfile is a profile on a social platform, unique by
// (Platform, case-folded Username).
type SocialProfile struct {
	Platform    string `json:"platform"`
	URL         string `json:"url"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

// Person is the contact person attached to a record.
type Person struct {
	Name       string `json:"name,omitempty"`
	Title      string `json:"title,omitempty"`
	Department string `json:"department,omitempty"`
}

// Signal is a single candidate value produced by one extractor, not yet
// merged into a record.
type Signal struct {
	Kind       Kind
	Value      string
	Technique  string
	Tier       Tier
	Confidence float64
	SourceURL  string
	Social     *SocialProfile
	Person     *Person
}

// Provenance records which technique produced an item and how confident it
// was. Entries are keyed by (Kind, Value, Technique) and never removed.
type Provenance struct {
	Kind       Kind      `json:"kind"`
	Value      string    `json:"value"`
	Technique  string    `json:"technique"`
	Tier       Tier      `json:"tier"`
	Confidence float64   `json:"confidence"`
	SourceURL  string    `json:"sourceUrl,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ExtractionDetails describes how and when a record was produced. A zero
// LastUpdated means the target has never been searched.
type ExtractionDetails struct {
	Normalized    bool      `json:"normalized"`
	SourceVersion string    `json:"sourceVersion"`
	LastUpdated   time.Time `json:"lastUpdated"`
	// Attempted lists techniques run against the target, in first-run order.
	Attempted []string `json:"attempted,omitempty"`
	// Pages lists the pages the extractors were fed.
	Pages []string `json:"pages,omitempty"`
	// Errors holds one human-readable line per failed technique or fetch.
	Errors        []string `json:"errors,omitempty"`
	FailureReason string   `json:"failureReason,omitempty"`
}

// ContactInfo is the canonical per-target record.
type ContactInfo struct {
	Emails            []string          `json:"emails"`
	SocialProfiles    []SocialProfile   `json:"socialProfiles"`
	ContactForms      []string          `json:"contactForms"`
	PhoneNumbers      []string          `json:"phoneNumbers"`
	ContactPerson     *Person           `json:"contactPerson,omitempty"`
	Provenance        []Provenance      `json:"provenance"`
	ExtractionDetails ExtractionDetails `json:"extractionDetails"`
}

// Searched reports whether the record was produced by a completed search,
// as opposed to never having been searched.
func (c *ContactInfo) Searched() bool {
	return c != nil && !c.ExtractionDetails.LastUpdated.IsZero()
}

// HasContact reports whether any contact channel was found.
func (c *ContactInfo) HasContact() bool {
	if c == nil {
		return false
	}
	return len(c.Emails) > 0 || len(c.SocialProfiles) > 0 || len(c.ContactForms) > 0 || len(c.PhoneNumbers) > 0
}

// Confidence returns the highest confidence recorded for (kind, value)
// across all techniques, or 0 if the value is unknown.
func (c *ContactInfo) Confidence(kind Kind, value string) float64 {
	key := keyFor(kind, value)
	best := 0.0
	for _, p := range c.Provenance {
		if p.Kind == kind && keyFor(p.Kind, p.Value) == key && p.Confidence > best {
			best = p.Confidence
		}
	}
	return best
}

// Techniques returns the techniques that contributed (kind, value).
func (c *ContactInfo) Techniques(kind Kind, value string) []string {
	key := keyFor(kind, value)
	var out []string
	for _, p := range c.Provenance {
		if p.Kind == kind && keyFor(p.Kind, p.Value) == key {
			out = append(out, p.Technique)
		}
	}
	return out
}

// Clone returns a deep copy.
func (c *ContactInfo) Clone() *ContactInfo {
	if c == nil {
		return &ContactInfo{}
	}
	out := &ContactInfo{
		Emails:         clip(c.Emails),
		SocialProfiles: clip(c.SocialProfiles),
		ContactForms:   clip(c.ContactForms),
		PhoneNumbers:   clip(c.PhoneNumbers),
		Provenance:     clip(c.Provenance),
	}
	if c.ContactPerson != nil {
		p := *c.ContactPerson
		out.ContactPerson = &p
	}
	out.ExtractionDetails = c.ExtractionDetails
	out.ExtractionDetails.Attempted = clip(c.ExtractionDetails.Attempted)
	out.ExtractionDetails.Pages = clip(c.ExtractionDetails.Pages)
	out.ExtractionDetails.Errors = clip(c.ExtractionDetails.Errors)
	return out
}

func clip[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return append([]T(nil), s...)
}
