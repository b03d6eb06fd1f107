package extract

import (
	"context"
	"slices"
	"testing"

	"github.com/FranksOps/linkscout/internal/contact"
)

func emailsOf(t *testing.T, html string) []string {
	t.Helper()
	sigs, err := NewEmail().Extract(context.Background(), &Input{Domain: "acme.io", Page: NewPage("https://acme.io/", html)})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	var out []string
	for _, s := range sigs {
		if s.Kind != contact.KindEmail || s.Technique != contact.TechniqueEmailPattern {
			t.Errorf("unexpected signal %+v", s)
		}
		out = append(out, s.Value)
	}
	slices.Sort(out)
	return out
}

func TestEmailExtract(t *testing.T) {
	tests := []struct {
		name string
		html string
		want []string
	}{
		{"mailto", `<a href="mailto:Hello@Acme.io?subject=hi">Contact</a>`, []string{"hello@acme.io"}},
		{"mailto multiple", `<a href="mailto:a@acme.io,b@acme.io">Mail</a>`, []string{"a@acme.io", "b@acme.io"}},
		{"plain", `<p>Write to sales@acme.io today.</p>`, []string{"sales@acme.io"}},
		{"decimal entity", `<p>info&#64;acme.io</p>`, []string{"info@acme.io"}},
		{"hex entity", `<p>support&#x40;acme.io</p>`, []string{"support@acme.io"}},
		{"bracket", `<p>jane [at] acme [dot] io</p>`, []string{"jane@acme.io"}},
		{"paren", `<p>press (at) brand (dot) io</p>`, []string{"press@brand.io"}},
		{"words", `<p>write to press at acme dot io</p>`, []string{"press@acme.io"}},
		{"words other domain", `<p>Our book is available at Amazon dot com and in stores.</p>`, nil},
		{"words prose", `<p>Find us at acme dot com. We met at Harvard dot edu.</p>`, nil},
		{"words in attribute", `<img alt="desk at acme dot io" src="x.png">`, []string{"desk@acme.io"}},
		{"js concat", `<script>var e = 'ops' + '@' + 'acme.io';</script>`, []string{"ops@acme.io"}},
		{"js charcode", `<script>document.write(String.fromCharCode(111,112,115,64,97,99,109,101,46,105,111))</script>`, []string{"ops@acme.io"}},
		{"cloudflare", `<a href="/cdn-cgi/l/email-protection" class="__cf_email__" data-cfemail="423627232f0223212f276c2b2d">[email&#160;protected]</a>`, []string{"team@acme.io"}},
		{"json-ld", `<script type="application/ld+json">{"@type":"Organization","email":"hq@acme.io"}</script>`, []string{"hq@acme.io"}},
		{"attribute", `<img alt="mail: art [at] acme [dot] io" src="x.png">`, []string{"art@acme.io"}},
		{"placeholder dropped", `<p>you@example.com or name@yourdomain.com</p>`, nil},
		{"no-reply dropped", `<p>noreply@acme.io</p>`, nil},
		{"asset names dropped", `<img src="logo@2x.png"><p>icon@3x.webp</p>`, nil},
		{"style ignored", `<style>.a{background:url(x@acme.io)}</style><p>none</p>`, nil},
		{"dedupe across techniques", `<a href="mailto:hi@acme.io">hi@acme.io</a><p>hi [at] acme [dot] io</p>`, []string{"hi@acme.io"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := emailsOf(t, tt.html)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmailConfidenceKeepsBest(t *testing.T) {
	html := `<p>hi [at] acme [dot] io</p><a href="mailto:hi@acme.io">mail</a>`
	sigs, err := NewEmail().Extract(context.Background(), &Input{Page: NewPage("https://acme.io/", html)})
	if err != nil {
		t.Fatal(err)
	}
	if len(sigs) != 1 {
		t.Fatalf("got %d signals, want 1", len(sigs))
	}
	if sigs[0].Confidence != 0.95 {
		t.Errorf("confidence = %v, want 0.95", sigs[0].Confidence)
	}
	if sigs[0].SourceURL != "https://acme.io/" {
		t.Errorf("source = %q", sigs[0].SourceURL)
	}
}

func TestDeobfuscateRoundTrip(t *testing.T) {
	tests := []struct{ in, want string }{
		{"jane [at] example [dot] com", "jane@example.com"},
		{"jane@example.com", "jane@example.com"},
		{"jane(at)example(dot)co(dot)uk", "jane@example.co.uk"},
		{"jane {at} example {dot} com", "jane@example.com"},
		{"jane at example dot com", "jane@example.com"},
		{"no address here", "no address here"},
	}
	for _, tt := range tests {
		if got := Deobfuscate(tt.in); got != tt.want {
			t.Errorf("Deobfuscate(%q) = %q, want %q", tt.in, got, tt.want)
		}
		// A second pass must not change anything.
		if got := Deobfuscate(Deobfuscate(tt.in)); got != tt.want {
			t.Errorf("Deobfuscate twice (%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestJSStrings(t *testing.T) {
	got := JSStrings(`var a = "x" + 'y'; var b = "me@acme.io"; String.fromCharCode(104, 105)`)
	for _, want := range []string{"xy", "me@acme.io", "hi"} {
		if !slices.Contains(got, want) {
			t.Errorf("JSStrings missing %q in %v", want, got)
		}
	}
}

func TestDecodeCFEmail(t *testing.T) {
	if got, ok := decodeCFEmail("423627232f0223212f276c2b2d"); !ok || got != "team@acme.io" {
		t.Errorf("decodeCFEmail = %q, %v", got, ok)
	}
	if _, ok := decodeCFEmail("zz"); ok {
		t.Error("invalid hex decoded")
	}
}
