package contact

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"
)

// ErrUnknownShape is returned when a stored document has none of the known
// contact fields.
var ErrUnknownShape = errors.New("unrecognised contact document")

// legacyFields are the keys older record generations used.
var legacyFields = []string{
	"email", "emails", "form", "contactForm", "contactForms",
	"social", "socialProfiles", "phone", "phones", "phoneNumbers",
	"contactPerson", "contactName",
}

// NormalizeLegacy converts a stored contact document of any known
// generation into the canonical ContactInfo. Renamed fields (email/emails,
// form/contactForm/contactForms, social/socialProfiles) are folded together
// and re-validated through Merge, so invalid legacy values are dropped.
// Canonical documents pass through unchanged apart from re-validation.
func NormalizeLegacy(data []byte) (*ContactInfo, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode contact document: %w", err)
	}

	known := false
	for _, f := range legacyFields {
		if _, ok := raw[f]; ok {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrUnknownShape
	}

	// Start from what already is canonical so provenance history survives.
	base := &ContactInfo{}
	if v, ok := raw["provenance"]; ok {
		_ = json.Unmarshal(v, &base.Provenance)
	}
	if v, ok := raw["extractionDetails"]; ok {
		_ = json.Unmarshal(v, &base.ExtractionDetails)
	}

	var signals []Signal
	add := func(kind Kind, values ...string) {
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				continue
			}
			signals = append(signals, Signal{Kind: kind, Value: v, Technique: TechniqueLegacy, Tier: TierPattern})
		}
	}

	for _, f := range []string{"emails", "email"} {
		add(KindEmail, stringsOf(raw[f])...)
	}
	for _, f := range []string{"contactForms", "contactForm", "form"} {
		add(KindForm, stringsOf(raw[f])...)
	}
	for _, f := range []string{"phoneNumbers", "phones", "phone"} {
		add(KindPhone, stringsOf(raw[f])...)
	}
	for _, f := range []string{"socialProfiles", "social"} {
		signals = append(signals, socialSignals(raw[f])...)
	}

	if v, ok := raw["contactPerson"]; ok {
		var p Person
		if err := json.Unmarshal(v, &p); err == nil && p.Name != "" {
			signals = append(signals, Signal{Kind: KindPerson, Person: &p, Technique: TechniqueLegacy, Tier: TierPattern, Confidence: 1})
		}
	} else if names := stringsOf(raw["contactName"]); len(names) > 0 {
		signals = append(signals, Signal{Kind: KindPerson, Person: &Person{Name: names[0]}, Technique: TechniqueLegacy, Tier: TierPattern, Confidence: 1})
	}

	now := base.ExtractionDetails.LastUpdated
	if now.IsZero() {
		now = time.Now()
	}
	return Merge(base, signals, now), nil
}

// stringsOf accepts a JSON string, array of strings, or a boolean-free
// object of strings and returns the string values found.
func stringsOf(v json.RawMessage) []string {
	if len(v) == 0 {
		return nil
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return []string{s}
	}
	var list []string
	if json.Unmarshal(v, &list) == nil {
		return list
	}
	var m map[string]string
	if json.Unmarshal(v, &m) == nil {
		out := make([]string, 0, len(m))
		for _, x := range m {
			out = append(out, x)
		}
		return out
	}
	return nil
}

// socialSignals handles three generations: a list of profile objects, a list
// of URLs, and a platform->URL map.
func socialSignals(v json.RawMessage) []Signal {
	if len(v) == 0 {
		return nil
	}
	mk := func(sp *SocialProfile, value string) Signal {
		return Signal{Kind: KindSocial, Value: value, Social: sp, Technique: TechniqueLegacy, Tier: TierPattern}
	}

	var objs []SocialProfile
	if json.Unmarshal(v, &objs) == nil {
		out := make([]Signal, 0, len(objs))
		for i := range objs {
			o := objs[i]
			if o.Username == "" {
				out = append(out, mk(nil, o.URL))
				continue
			}
			out = append(out, mk(&o, o.URL))
		}
		return out
	}

	// map platform -> url; iterate in a fixed order so merges are stable
	var m map[string]string
	if json.Unmarshal(v, &m) == nil {
		var out []Signal
		for _, k := range slices.Sorted(maps.Keys(m)) {
			out = append(out, mk(nil, m[k]))
		}
		return out
	}

	out := make([]Signal, 0)
	for _, u := range stringsOf(v) {
		out = append(out, mk(nil, u))
	}
	return out
}
