package domainutil

import "testing"

func TestRootDomain(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},
		{"a.b.c.example.com", "example.com"},
		{"blog.shop.example.co.uk", "example.co.uk"},
		{"Example.CO.UK.", "example.co.uk"},
		{"news.bbc.co.uk:8443", "bbc.co.uk"},
		{"127.0.0.1", "127.0.0.1"},
		{"127.0.0.1:8080", "127.0.0.1"},
		{"localhost", "localhost"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RootDomain(tt.host); got != tt.want {
			t.Errorf("RootDomain(%q) = %q, want %q", tt.host, got, tt.want)
		}
	}
}

func TestSameSite(t *testing.T) {
	if !SameSite("https://www.example.org/contact", "http://blog.example.org") {
		t.Errorf("expected subdomains of one root to be the same site")
	}
	if SameSite("https://example.org", "https://example.com") {
		t.Errorf("expected different roots to differ")
	}
	if SameSite("not a url", "also not") {
		t.Errorf("expected hostless URLs never to match")
	}
}

func TestBaseURL(t *testing.T) {
	if got := BaseURL("example.org", ""); got != "https://example.org/" {
		t.Errorf("got %q", got)
	}
	if got := BaseURL("example.org", "example.org/about"); got != "https://example.org/about" {
		t.Errorf("got %q", got)
	}
	if got := BaseURL("example.org", "http://example.org"); got != "http://example.org" {
		t.Errorf("got %q", got)
	}
	if got := RootURL("https://example.org/a/b?c=d"); got != "https://example.org/" {
		t.Errorf("got %q", got)
	}
}

func TestRootOrigin(t *testing.T) {
	tests := map[string]string{
		"https://www.shop.example.co.uk/contact": "https://example.co.uk/",
		"http://blog.example.org:8080/a":         "http://example.org:8080/",
		"http://127.0.0.1:3000/":                 "http://127.0.0.1:3000/",
		"no host":                                "",
	}
	for in, want := range tests {
		if got := RootOrigin(in); got != want {
			t.Errorf("RootOrigin(%q) = %q, want %q", in, got, want)
		}
	}
}
