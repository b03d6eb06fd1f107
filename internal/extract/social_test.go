package extract

import (
	"context"
	"testing"

	"github.com/FranksOps/linkscout/internal/contact"
)

func TestSocialExtract(t *testing.T) {
	html := `<html><body>
<script type="application/ld+json">{"@type":"Organization","sameAs":["https://twitter.com/acme"]}</script>
<footer>
  <a href="https://www.linkedin.com/company/acme/" class="icon-linkedin"><i class="fa fa-linkedin"></i></a>
  <a href="https://linkedin.com/company/acme?trk=footer">Follow us</a>
  <a href="https://x.com/acme">@acme</a>
  <a href="https://www.facebook.com/sharer/sharer.php?u=acme.io">Share</a>
  <a href="https://github.com/acme-labs">Acme Labs</a>
</footer></body></html>`

	sigs, err := NewSocial().Extract(context.Background(), &Input{Page: NewPage("https://acme.io/", html)})
	if err != nil {
		t.Fatal(err)
	}

	byPlatform := make(map[string][]contact.Signal)
	for _, s := range sigs {
		if s.Social == nil {
			t.Fatalf("signal without profile: %+v", s)
		}
		byPlatform[s.Social.Platform] = append(byPlatform[s.Social.Platform], s)
	}

	if n := len(byPlatform["linkedin"]); n != 1 {
		t.Fatalf("linkedin signals = %d, want 1", n)
	}
	li := byPlatform["linkedin"][0]
	if li.Social.Username != "company/acme" {
		t.Errorf("linkedin username = %q", li.Social.Username)
	}
	if li.Confidence != 0.95 {
		t.Errorf("linkedin confidence = %v, want 0.95 from icon hint", li.Confidence)
	}
	if n := len(byPlatform["twitter"]); n != 1 {
		t.Errorf("twitter signals = %d, want 1 (twitter.com and x.com are one profile)", n)
	}
	if len(byPlatform["facebook"]) != 0 {
		t.Error("share links are not profiles")
	}
	if gh := byPlatform["github"]; len(gh) != 1 || gh[0].Social.DisplayName != "Acme Labs" {
		t.Errorf("github = %+v", gh)
	}
}

func TestDisplayNameSkipsGenericLabels(t *testing.T) {
	html := `<a href="https://instagram.com/acme">Follow us on Instagram</a>`
	sigs, err := NewSocial().Extract(context.Background(), &Input{Page: NewPage("https://acme.io/", html)})
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 || sigs[0].Social.DisplayName != "" {
		t.Errorf("got %+v", sigs)
	}
}
