package contact

import "time"

// Combine folds a whole record into existing, as when a stored document is
// updated with a fresh run. Values carry over with their provenance;
// values without provenance are credited to TechniqueLegacy. Extraction
// details are unioned and the incoming failure reason replaces the old one.
// Combine(Combine(a, b), b) equals Combine(a, b).
func Combine(existing, incoming *ContactInfo) *ContactInfo {
	if incoming == nil {
		return existing.Clone()
	}
	now := incoming.ExtractionDetails.LastUpdated
	if now.IsZero() {
		now = time.Now()
	}

	rec := Merge(existing, SignalsOf(incoming), now)

	d, in := &rec.ExtractionDetails, incoming.ExtractionDetails
	for _, a := range in.Attempted {
		d.NoteAttempt(a)
	}
	for _, p := range in.Pages {
		d.NotePage(p)
	}
	for _, e := range in.Errors {
		d.NoteError(e)
	}
	d.FailureReason = in.FailureReason
	if in.LastUpdated.After(d.LastUpdated) {
		d.LastUpdated = in.LastUpdated.UTC()
	}
	return rec
}

// SignalsOf turns a record back into the signals that would rebuild it.
func SignalsOf(c *ContactInfo) []Signal {
	if c == nil {
		return nil
	}
	profiles := make(map[string]SocialProfile, len(c.SocialProfiles))
	for _, sp := range c.SocialProfiles {
		profiles[sp.Platform+":"+sp.Username] = sp
	}

	var out []Signal
	covered := make(map[string]bool)
	for _, p := range c.Provenance {
		s := Signal{
			Kind:       p.Kind,
			Value:      p.Value,
			Technique:  p.Technique,
			Tier:       p.Tier,
			Confidence: p.Confidence,
			SourceURL:  p.SourceURL,
		}
		switch p.Kind {
		case KindSocial:
			if sp, ok := profiles[p.Value]; ok {
				s.Social = &sp
				s.Value = sp.URL
			}
		case KindPerson:
			person := Person{Name: p.Value}
			if c.ContactPerson != nil && c.ContactPerson.Name == p.Value {
				person = *c.ContactPerson
			}
			s.Person = &person
		}
		covered[string(p.Kind)+"\x00"+keyFor(p.Kind, s.Value)] = true
		out = append(out, s)
	}

	legacy := func(kind Kind, value string) Signal {
		return Signal{Kind: kind, Value: value, Technique: TechniqueLegacy, Tier: TierPattern}
	}
	for _, e := range c.Emails {
		if !covered[string(KindEmail)+"\x00"+keyFor(KindEmail, e)] {
			out = append(out, legacy(KindEmail, e))
		}
	}
	for _, f := range c.ContactForms {
		if !covered[string(KindForm)+"\x00"+keyFor(KindForm, f)] {
			out = append(out, legacy(KindForm, f))
		}
	}
	for _, ph := range c.PhoneNumbers {
		if !covered[string(KindPhone)+"\x00"+keyFor(KindPhone, ph)] {
			out = append(out, legacy(KindPhone, ph))
		}
	}
	for _, sp := range c.SocialProfiles {
		if !covered[string(KindSocial)+"\x00"+keyFor(KindSocial, sp.URL)] {
			s := legacy(KindSocial, sp.URL)
			profile := sp
			s.Social = &profile
			out = append(out, s)
		}
	}
	if cp := c.ContactPerson; cp != nil && !covered[string(KindPerson)+"\x00"+keyFor(KindPerson, cp.Name)] {
		s := legacy(KindPerson, cp.Name)
		person := *cp
		s.Person = &person
		s.Confidence = 1
		out = append(out, s)
	}
	return out
}
