package contact

import "encoding/json"

// MarshalJSON writes empty sets as [] rather than null so stored documents
// always carry the canonical shape.
func (c ContactInfo) MarshalJSON() ([]byte, error) {
	type plain ContactInfo
	p := plain(c)
	if p.Emails == nil {
		p.Emails = []string{}
	}
	if p.SocialProfiles == nil {
		p.SocialProfiles = []SocialProfile{}
	}
	if p.ContactForms == nil {
		p.ContactForms = []string{}
	}
	if p.PhoneNumbers == nil {
		p.PhoneNumbers = []string{}
	}
	if p.Provenance == nil {
		p.Provenance = []Provenance{}
	}
	return json.Marshal(p)
}
