package contact

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	localRe = regexp.MustCompile(`^[a-z0-9!#$%&'*+/=?^_{|}~-]+(\.[a-z0-9!#$%&'*+/=?^_{|}~-]+)*$`)
	labelRe = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)
	tldRe   = regexp.MustCompile(`^[a-z]{2,24}$`)
)

// placeholderDomains never hold real contacts.
var placeholderDomains = map[string]bool{
	"example.com": true,
	"yourdomain.com": true, "yoursite.com": true, "yourcompany.com": true,
	"domain.com": true, "email.com": true, "mysite.com": true, "website.com": true,
	"company.com": true, "test.com": true, "sentry.io": true, "wixpress.com": true,
	"sentry-next.wixpress.com": true,
}

// noReplyLocals mark automated mailboxes.
var noReplyLocals = []string{"noreply", "no-reply", "no_reply", "donotreply", "do-not-reply", "do_not_reply", "mailer-daemon", "postmaster", "bounce"}

// fileExtensions catch asset names like logo@2x.png that look like emails.
var fileExtensions = map[string]bool{
	"png": true, "jpg": true, "jpeg": true, "gif": true, "svg": true, "webp": true,
	"css": true, "js": true, "ico": true, "woff": true, "woff2": true, "mp4": true,
}

// NormalizeEmail lowercases and trims an address, returning "" when it does
// not match the strict local@domain.tld grammar.
func NormalizeEmail(raw string) string {
	e := strings.ToLower(strings.TrimSpace(raw))
	e = strings.Trim(e, ".,;:<>()[]{}\"'")
	if ValidEmail(e) {
		return e
	}
	return ""
}

// ValidEmail reports whether e (already lowercased) is a syntactically
// strict address: a dot-atom local part of at most 64 characters, and a
// domain of LDH labels ending in an alphabetic TLD.
func ValidEmail(e string) bool {
	if len(e) > 254 || strings.ContainsAny(e, " \t\r\n") {
		return false
	}
	at := strings.LastIndexByte(e, '@')
	if at <= 0 || at != strings.IndexByte(e, '@') {
		return false
	}
	local, domain := e[:at], e[at+1:]
	if len(local) > 64 || !localRe.MatchString(local) {
		return false
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels[:len(labels)-1] {
		if !labelRe.MatchString(l) {
			return false
		}
	}
	tld := labels[len(labels)-1]
	return tldRe.MatchString(tld) && !fileExtensions[tld]
}

// AcceptableEmail combines the grammar check with the false-positive
// filters: placeholder domains and no-reply mailboxes are rejected.
func AcceptableEmail(e string) bool {
	if !ValidEmail(e) {
		return false
	}
	at := strings.IndexByte(e, '@')
	local, domain := e[:at], e[at+1:]
	if placeholderDomains[domain] {
		return false
	}
	for _, nr := range noReplyLocals {
		if strings.HasPrefix(local, nr) {
			return false
		}
	}
	return true
}

// EmailDomain returns the part after '@'.
func EmailDomain(e string) string {
	if i := strings.LastIndexByte(e, '@'); i >= 0 {
		return e[i+1:]
	}
	return ""
}

// NormalizeURL lowercases scheme and host, drops the fragment and a trailing
// slash on non-root paths. It returns "" for non-http(s) URLs.
func NormalizeURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	if u.Path == "" {
		u.Path = "/"
	} else if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		if u.Path == "" {
			u.Path = "/"
		}
	}
	u.RawPath = ""
	return u.String()
}

// NormalizePhone keeps digits and a leading '+'. Numbers with fewer than 7
// or more than 15 digits are rejected.
func NormalizePhone(raw string) string {
	var b strings.Builder
	digits := 0
	for i, r := range strings.TrimSpace(raw) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
			digits++
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	if digits < 7 || digits > 15 {
		return ""
	}
	return b.String()
}

func keyFor(kind Kind, value string) string {
	switch kind {
	case KindEmail, KindSocial, KindPerson:
		return strings.ToLower(strings.TrimSpace(value))
	case KindForm:
		return NormalizeURL(value)
	case KindPhone:
		return NormalizePhone(value)
	}
	return value
}
