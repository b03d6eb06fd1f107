// Package bypass recognises bot-protection challenge and block pages so the
// fetcher can treat them as transient failures instead of page content.
package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Response is the part of a fetched page detectors look at.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Detector reports whether r is a challenge page and names the vendor.
type Detector func(r *Response) (vendor string, ok bool)

// DefaultDetectors covers the vendors commonly seen in front of small
// business sites.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
		detectSucuri,
	}
}

// Detect runs r through detectors and returns the first vendor that matches.
func Detect(r *Response, detectors []Detector) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, d := range detectors {
		if vendor, ok := d(r); ok {
			return vendor, true
		}
	}
	return "", false
}

func serverIs(r *Response, name string) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Server")), name)
}

func bodyHas(r *Response, needles ...string) bool {
	for _, n := range needles {
		if bytes.Contains(r.Body, []byte(n)) {
			return true
		}
	}
	return false
}

func detectCloudflare(r *Response) (string, bool) {
	if r.Status != http.StatusForbidden && r.Status != http.StatusServiceUnavailable && r.Status != http.StatusTooManyRequests {
		return "", false
	}
	if r.Header.Get("Cf-Mitigated") == "challenge" {
		return "cloudflare", true
	}
	if serverIs(r, "cloudflare") && bodyHas(r, "cf-", "Just a moment", "Attention Required") {
		return "cloudflare", true
	}
	if bodyHas(r, "cf-browser-verification", "cf-turnstile", "challenge-platform", "Attention Required! | Cloudflare") {
		return "cloudflare", true
	}
	return "", false
}

func detectAkamai(r *Response) (string, bool) {
	if r.Status != http.StatusForbidden {
		return "", false
	}
	if serverIs(r, "akamai") {
		return "akamai", true
	}
	if bodyHas(r, "Reference #") && bodyHas(r, "Access Denied") {
		return "akamai", true
	}
	return "", false
}

func detectDataDome(r *Response) (string, bool) {
	if r.Status != http.StatusForbidden {
		return "", false
	}
	if serverIs(r, "datadome") || r.Header.Get("X-Datadome") != "" || r.Header.Get("X-Datadome-Response") != "" {
		return "datadome", true
	}
	if bodyHas(r, "geo.captcha-delivery.com", "datadome") {
		return "datadome", true
	}
	return "", false
}

func detectPerimeterX(r *Response) (string, bool) {
	if r.Status != http.StatusForbidden {
		return "", false
	}
	if r.Header.Get("X-Px-Captcha") != "" {
		return "perimeterx", true
	}
	if bodyHas(r, "client.perimeterx.net", "px-captcha", "_pxBlock") {
		return "perimeterx", true
	}
	return "", false
}

func detectSucuri(r *Response) (string, bool) {
	if r.Status != http.StatusForbidden && r.Status != http.StatusServiceUnavailable {
		return "", false
	}
	if r.Header.Get("X-Sucuri-Id") != "" || serverIs(r, "sucuri") {
		return "sucuri", true
	}
	if bodyHas(r, "Sucuri WebSite Firewall") {
		return "sucuri", true
	}
	return "", false
}
