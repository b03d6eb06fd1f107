// Package ldjson pulls contact-relevant fields out of schema.org JSON-LD
// blocks embedded in a page.
package ldjson

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ContactPoint is a schema.org ContactPoint.
type ContactPoint struct {
	URL         string
	Email       string
	Telephone   string
	ContactType string
}

// Person is a schema.org Person found in the graph (founder, employee, ...).
type Person struct {
	Name     string
	JobTitle string
	Email    string
}

// Data is everything of interest found across all JSON-LD blocks.
type Data struct {
	SameAs        []string
	ContactPages  []string
	ContactPoints []ContactPoint
	Emails        []string
	Telephones    []string
	People        []Person
	// Invalid counts blocks that failed to parse.
	Invalid int
}

// FromDocument parses every <script type="application/ld+json"> in doc.
// Malformed blocks are counted and skipped.
func FromDocument(doc *goquery.Document) Data {
	var d Data
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(cleanBlock(s.Text())), &v); err != nil {
			d.Invalid++
			return
		}
		d.walk(v, 0)
	})
	return d
}

// cleanBlock strips CDATA wrappers and HTML comments some CMSes leave around
// the JSON.
func cleanBlock(s string) string {
	s = strings.TrimSpace(s)
	for _, p := range [][2]string{{"<![CDATA[", "]]>"}, {"<!--", "-->"}, {"//<![CDATA[", "//]]>"}} {
		if strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			s = strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}

const maxDepth = 12

func (d *Data) walk(v any, depth int) {
	if depth > maxDepth {
		return
	}
	switch t := v.(type) {
	case []any:
		for _, x := range t {
			d.walk(x, depth+1)
		}
	case map[string]any:
		d.node(t, depth)
	}
}

func (d *Data) node(m map[string]any, depth int) {
	types := strings.ToLower(strings.Join(strs(m["@type"]), " "))

	d.SameAs = append(d.SameAs, strs(m["sameAs"])...)
	d.ContactPages = append(d.ContactPages, strs(m["contactPage"])...)

	switch {
	case strings.Contains(types, "contactpoint"):
		d.ContactPoints = append(d.ContactPoints, ContactPoint{
			URL:         first(m["url"]),
			Email:       first(m["email"]),
			Telephone:   first(m["telephone"]),
			ContactType: first(m["contactType"]),
		})
	case strings.Contains(types, "person"):
		if name := first(m["name"]); name != "" {
			d.People = append(d.People, Person{Name: name, JobTitle: first(m["jobTitle"]), Email: first(m["email"])})
		}
		d.Emails = append(d.Emails, strs(m["email"])...)
		d.Telephones = append(d.Telephones, strs(m["telephone"])...)
	default:
		d.Emails = append(d.Emails, strs(m["email"])...)
		d.Telephones = append(d.Telephones, strs(m["telephone"])...)
	}

	for k, v := range m {
		switch k {
		case "@context", "@type", "sameAs", "contactPage", "email", "telephone", "name", "url":
			continue
		}
		d.walk(v, depth+1)
	}
}

// strs flattens a JSON-LD value that may be a string, an array of strings,
// or an {"@id": ...} reference.
func strs(v any) []string {
	switch t := v.(type) {
	case string:
		if s := strings.TrimSpace(t); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, x := range t {
			out = append(out, strs(x)...)
		}
		return out
	case map[string]any:
		if id, ok := t["@id"].(string); ok && len(t) == 1 {
			return strs(id)
		}
	}
	return nil
}

func first(v any) string {
	if s := strs(v); len(s) > 0 {
		return s[0]
	}
	return ""
}
