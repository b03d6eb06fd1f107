package contact

import (
	"errors"
	"reflect"
	"testing"
)

func TestNormalizeLegacy_RenamedFields(t *testing.T) {
	doc := `{
		"email": "Owner@Acme.io",
		"emails": ["owner@acme.io", "sales@acme.io", "bad@@x"],
		"form": "https://acme.io/contact/",
		"contactForm": "https://acme.io/contact",
		"social": {"twitter": "https://x.com/AcmeHQ", "linkedin": "https://www.linkedin.com/company/acme/"},
		"phone": "555-010-9999",
		"contactName": "Jane Doe"
	}`
	rec, err := NormalizeLegacy([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"owner@acme.io", "sales@acme.io"}; !reflect.DeepEqual(rec.Emails, want) {
		t.Errorf("emails = %v, want %v", rec.Emails, want)
	}
	if want := []string{"https://acme.io/contact"}; !reflect.DeepEqual(rec.ContactForms, want) {
		t.Errorf("forms = %v, want %v", rec.ContactForms, want)
	}
	if len(rec.SocialProfiles) != 2 {
		t.Fatalf("social = %+v", rec.SocialProfiles)
	}
	// map input is applied in key order
	if rec.SocialProfiles[0].Platform != "linkedin" || rec.SocialProfiles[0].Username != "company/acme" {
		t.Errorf("social[0] = %+v", rec.SocialProfiles[0])
	}
	if rec.ContactPerson == nil || rec.ContactPerson.Name != "Jane Doe" {
		t.Errorf("contactPerson = %+v", rec.ContactPerson)
	}
	if !rec.ExtractionDetails.Normalized || rec.ExtractionDetails.SourceVersion != SourceVersion {
		t.Errorf("details = %+v", rec.ExtractionDetails)
	}
}

func TestNormalizeLegacy_SocialURLList(t *testing.T) {
	rec, err := NormalizeLegacy([]byte(`{"socialProfiles": ["https://github.com/acme", "https://github.com/Acme/"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.SocialProfiles) != 1 || rec.SocialProfiles[0].Username != "acme" {
		t.Errorf("social = %+v", rec.SocialProfiles)
	}
}

func TestNormalizeLegacy_CanonicalRoundTrip(t *testing.T) {
	orig := Merge(nil, sampleSignals(), t0)
	b, err := orig.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	got, err := NormalizeLegacy(b)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got.Emails, orig.Emails) || !reflect.DeepEqual(got.SocialProfiles, orig.SocialProfiles) {
		t.Errorf("round trip changed record:\n got %+v\nwant %+v", got, orig)
	}
	if !got.ExtractionDetails.LastUpdated.Equal(orig.ExtractionDetails.LastUpdated) {
		t.Errorf("lastUpdated = %v, want %v", got.ExtractionDetails.LastUpdated, orig.ExtractionDetails.LastUpdated)
	}
}

func TestNormalizeLegacy_UnknownShape(t *testing.T) {
	_, err := NormalizeLegacy([]byte(`{"foo": 1}`))
	if !errors.Is(err, ErrUnknownShape) {
		t.Errorf("err = %v, want ErrUnknownShape", err)
	}
	if _, err := NormalizeLegacy([]byte(`not json`)); err == nil {
		t.Error("expected decode error")
	}
}
