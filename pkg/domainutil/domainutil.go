// Package domainutil computes the root domain used as the unit of politeness
// throttling and the scope of a target's crawl.
package domainutil

import (
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// RootDomain strips subdomains from host and collapses multi-part public
// suffixes, so "blog.shop.example.co.uk" becomes "example.co.uk". Ports and a
// trailing dot are ignored. Hosts without a registrable domain (IP addresses,
// "localhost") are returned lowercased as-is.
func RootDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(host, ".")
	host = strings.Trim(host, "[]")
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}
	root, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return root
}

// RootDomainOf parses rawURL and returns the root domain of its host.
// It returns "" when rawURL has no host.
func RootDomainOf(rawURL string) string {
	return RootDomain(Hostname(rawURL))
}

// Hostname returns the lowercased host of rawURL without port, or "" if the
// URL cannot be parsed.
func Hostname(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// SameSite reports whether both URLs share a root domain.
func SameSite(a, b string) bool {
	ra, rb := RootDomainOf(a), RootDomainOf(b)
	return ra != "" && ra == rb
}

// BaseURL returns an absolute http(s) URL for a target. An empty rawURL falls
// back to https://domain/, and a scheme-less value gets https:// prepended.
func BaseURL(domain, rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		domain = strings.TrimSpace(domain)
		if domain == "" {
			return ""
		}
		return "https://" + domain + "/"
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	return rawURL
}

// RootURL returns scheme://host/ for rawURL.
func RootURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}

// RootOrigin returns scheme://root-domain/ for rawURL, keeping any explicit
// port, so "https://www.shop.example.co.uk/x" becomes
// "https://example.co.uk/".
func RootOrigin(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := RootDomain(u.Hostname())
	if port := u.Port(); port != "" {
		host = net.JoinHostPort(host, port)
	}
	return u.Scheme + "://" + host + "/"
}
