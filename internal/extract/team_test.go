package extract

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/FranksOps/linkscout/internal/contact"
)

type fakeVerifier struct {
	mu       sync.Mutex
	exists   map[string]bool
	catchAll bool
	calls    []string
}

func (f *fakeVerifier) Verify(_ context.Context, email string) Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, email)
	if f.catchAll || f.exists[email] {
		return VerdictExists
	}
	return VerdictRejected
}

const teamHTML = `<html><body>
<h1>Meet Our Team</h1>
<section class="team">
  <div class="member"><h3>Jane Doe</h3><p class="role">Chief Executive Officer</p></div>
  <div class="member"><h3>José Álvarez</h3><p>Editor</p></div>
  <div class="member"><h3>Read More</h3></div>
</section>
</body></html>`

func TestTeamFindsPeople(t *testing.T) {
	in := &Input{Domain: "acme.io", Pages: []*Page{NewPage("https://acme.io/team", teamHTML)}}
	sigs, err := NewTeam(TeamConfig{}, nil, nil).Extract(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 2 {
		t.Fatalf("got %d signals, want 2: %+v", len(sigs), sigs)
	}
	first := sigs[0]
	if first.Kind != contact.KindPerson || first.Person.Name != "Jane Doe" || first.Person.Title != "Chief Executive Officer" {
		t.Errorf("first person = %+v", first.Person)
	}
	if first.Confidence < contact.PersonThreshold {
		t.Errorf("titled person confidence %v below threshold", first.Confidence)
	}
	if sigs[1].Person.Name != "José Álvarez" {
		t.Errorf("second person = %+v", sigs[1].Person)
	}
}

func TestTeamVerifiedPermutations(t *testing.T) {
	v := &fakeVerifier{exists: map[string]bool{"jane.doe@acme.io": true}}
	in := &Input{Domain: "acme.io", Pages: []*Page{NewPage("https://acme.io/team", teamHTML)}}
	sigs, err := NewTeam(TeamConfig{}, v, nil).Extract(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	var emails []contact.Signal
	for _, s := range sigs {
		if s.Kind == contact.KindEmail {
			emails = append(emails, s)
		}
	}
	if len(emails) != 1 || emails[0].Value != "jane.doe@acme.io" {
		t.Fatalf("emails = %+v", emails)
	}
	if emails[0].Tier != contact.TierInferred || emails[0].Technique != contact.TechniqueTeam {
		t.Errorf("signal = %+v", emails[0])
	}
	// One catch-all probe plus at most MaxVerify candidates.
	if len(v.calls) > 6 {
		t.Errorf("verified %d addresses, want at most 6", len(v.calls))
	}
	if !strings.HasPrefix(v.calls[0], "zz-") {
		t.Errorf("first call %q is not the catch-all probe", v.calls[0])
	}
}

func TestTeamCatchAllAddsNothing(t *testing.T) {
	v := &fakeVerifier{catchAll: true}
	in := &Input{Domain: "acme.io", Pages: []*Page{NewPage("https://acme.io/team", teamHTML)}}
	sigs, err := NewTeam(TeamConfig{}, v, nil).Extract(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range sigs {
		if s.Kind == contact.KindEmail {
			t.Errorf("catch-all host produced %q", s.Value)
		}
	}
	if len(v.calls) != 1 {
		t.Errorf("calls = %v, want only the probe", v.calls)
	}
}

func TestTeamNotApplicable(t *testing.T) {
	in := &Input{Domain: "acme.io", Pages: []*Page{NewPage("https://acme.io/", "<p>Welcome</p>")}}
	if _, err := NewTeam(TeamConfig{}, nil, nil).Extract(context.Background(), in); !errors.Is(err, ErrNotApplicable) {
		t.Errorf("err = %v, want ErrNotApplicable", err)
	}
}

func TestPermutations(t *testing.T) {
	got := Permutations([]string{"Dr. Jane Doe"}, []string{"contact", "hello"}, "acme.io", 12)
	want := []string{
		"jane.doe@acme.io", "janedoe@acme.io", "jdoe@acme.io", "jane@acme.io",
		"jane_doe@acme.io", "janed@acme.io", "contact@acme.io", "hello@acme.io",
	}
	if !slices.Equal(got, want) {
		t.Errorf("got %v\nwant %v", got, want)
	}
	if got := Permutations([]string{"Jane Doe", "John Smith"}, DefaultAliases, "acme.io", 5); len(got) != 5 {
		t.Errorf("limit not applied: %v", got)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct{ in, first, last string }{
		{"Jane Doe", "jane", "doe"},
		{"José Álvarez", "jose", "alvarez"},
		{"Jürgen Müller", "juergen", "mueller"},
		{"Mary-Ann O'Neil", "maryann", "oneil"},
		{"Prof. Ada King Lovelace", "ada", "lovelace"},
		{"Cher", "cher", ""},
	}
	for _, tt := range tests {
		first, last := SplitName(tt.in)
		if first != tt.first || last != tt.last {
			t.Errorf("SplitName(%q) = %q, %q; want %q, %q", tt.in, first, last, tt.first, tt.last)
		}
	}
}

func TestLooksLikeName(t *testing.T) {
	for s, want := range map[string]bool{
		"Jane Doe":                true,
		"Mary-Ann O'Neil":         true,
		"Meet Our Team":           false,
		"Chief Executive Officer": false,
		"jane doe":                false,
		"Jane":                    false,
		"Call 555 0100":           false,
	} {
		if got := LooksLikeName(s); got != want {
			t.Errorf("LooksLikeName(%q) = %v, want %v", s, got, want)
		}
	}
}
