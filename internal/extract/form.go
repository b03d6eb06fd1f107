package extract

import (
	"context"
	"net/url"
	"strings"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/pkg/domainutil"
	"github.com/PuerkitoBio/goquery"
)

var formKeywords = []string{"contact", "message", "feedback", "enquiry", "inquiry", "get-in-touch", "kontakt", "write-for-us"}

// formHosts are hosted form builders commonly embedded as contact forms.
var formHosts = []string{
	"docs.google.com/forms", "forms.gle", "typeform.com", "jotform.com", "form.jotform",
	"hsforms.com", "share.hsforms.com", "wufoo.com", "formstack.com", "tally.so", "forms.office.com",
}

// Form flags contact forms. A form qualifies if it has an email-type input
// plus a message textarea, or its action/id/class/fields match contact
// vocabulary. Search, login and newsletter-only forms never qualify. When no
// form on the page qualifies, the first contact-looking same-site link is
// reported with lower confidence.
type Form struct{}

// NewForm returns the contact form detector.
func NewForm() *Form { return &Form{} }

func (*Form) Name() string       { return contact.TechniqueContactForm }
func (*Form) Tier() contact.Tier { return contact.TierStructural }
func (*Form) Scope() Scope       { return ScopePage }

func (f *Form) Extract(_ context.Context, in *Input) ([]contact.Signal, error) {
	var out []contact.Signal
	for _, p := range pagesOf(in) {
		doc, err := p.Document()
		if err != nil {
			return out, err
		}

		found := false
		doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
			if isContactForm(form) {
				out = append(out, signal(contact.KindForm, p.URL, f.Name(), f.Tier(), 0.8, p.URL))
				found = true
				return false
			}
			return true
		})

		doc.Find("iframe[src]").Each(func(_ int, fr *goquery.Selection) {
			src, _ := fr.Attr("src")
			if embeddedForm(src) {
				out = append(out, signal(contact.KindForm, absolute(p.URL, src), f.Name(), f.Tier(), 0.75, p.URL))
				found = true
			}
		})

		if found {
			continue
		}
		if link := firstContactLink(doc, p.URL); link != "" {
			out = append(out, signal(contact.KindForm, link, f.Name(), f.Tier(), 0.5, p.URL))
		}
	}
	return out, nil
}

func isContactForm(form *goquery.Selection) bool {
	if role, _ := form.Attr("role"); role == "search" {
		return false
	}
	if form.Find(`input[type="password"], input[type="search"]`).Length() > 0 {
		return false
	}

	var attrs []string
	for _, a := range []string{"action", "id", "class", "name"} {
		if v, ok := form.Attr(a); ok {
			attrs = append(attrs, v)
		}
	}
	hay := strings.ToLower(strings.Join(attrs, " "))
	if strings.Contains(hay, "search") || strings.Contains(hay, "login") {
		return false
	}

	hasEmail := form.Find(`input[type="email"], input[name*="email"], input[name*="Email"], input[id*="email"]`).Length() > 0
	hasMessage := form.Find(`textarea`).Length() > 0
	if hasEmail && hasMessage {
		return true
	}

	fields := form.Find("input, textarea, select")
	if fields.Length() == 0 {
		return false
	}
	if !hasMessage && (strings.Contains(hay, "newsletter") || strings.Contains(hay, "subscribe")) {
		return false
	}

	fields.Each(func(_ int, s *goquery.Selection) {
		for _, a := range []string{"name", "id", "placeholder"} {
			if v, ok := s.Attr(a); ok {
				hay += " " + strings.ToLower(v)
			}
		}
	})
	for _, k := range formKeywords {
		if strings.Contains(hay, k) {
			return true
		}
	}
	return false
}

func embeddedForm(src string) bool {
	l := strings.ToLower(src)
	for _, h := range formHosts {
		if strings.Contains(l, h) {
			return true
		}
	}
	return false
}

func firstContactLink(doc *goquery.Document, pageURL string) string {
	var link string
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		abs := absolute(pageURL, href)
		if abs == "" || !domainutil.SameSite(pageURL, abs) {
			return true
		}
		text := strings.ToLower(a.Text())
		u, _ := url.Parse(abs)
		path := strings.ToLower(u.Path)
		if strings.Contains(path, "contact") || strings.Contains(text, "contact") ||
			strings.Contains(path, "get-in-touch") || strings.Contains(text, "get in touch") {
			link = abs
			return false
		}
		return true
	})
	return link
}

// absolute resolves href against base, keeping only http(s) results.
func absolute(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	r, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	abs := b.ResolveReference(r)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
