package extract

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/ldjson"
)

// intlPhoneRe only matches numbers written with a leading '+', which keeps
// dates, prices and order numbers out.
var intlPhoneRe = regexp.MustCompile(`\+\d{1,3}[\s.-]?(?:\(\d{1,4}\)[\s.-]?)?\d{1,4}(?:[\s.-]?\d{2,4}){1,4}`)

// Phone collects tel: links, JSON-LD telephones and international numbers in
// visible text. It is best-effort.
type Phone struct{}

// NewPhone returns the phone extractor.
func NewPhone() *Phone { return &Phone{} }

func (*Phone) Name() string       { return contact.TechniquePhone }
func (*Phone) Tier() contact.Tier { return contact.TierPattern }
func (*Phone) Scope() Scope       { return ScopePage }

func (ph *Phone) Extract(_ context.Context, in *Input) ([]contact.Signal, error) {
	var out []contact.Signal
	seen := make(map[string]bool)
	for _, p := range pagesOf(in) {
		add := func(raw string, conf float64) {
			n := contact.NormalizePhone(raw)
			if n == "" || seen[n] {
				return
			}
			seen[n] = true
			out = append(out, signal(contact.KindPhone, n, ph.Name(), ph.Tier(), conf, p.URL))
		}

		sc := p.scanned()
		for _, t := range sc.tels {
			v := t[len("tel:"):]
			if un, err := url.PathUnescape(v); err == nil {
				v = un
			}
			add(v, 0.9)
		}
		if doc, err := p.Document(); err == nil {
			ld := ldjson.FromDocument(doc)
			for _, t := range ld.Telephones {
				add(t, 0.85)
			}
			for _, cp := range ld.ContactPoints {
				add(cp.Telephone, 0.85)
			}
		}
		for _, m := range intlPhoneRe.FindAllString(sc.text, -1) {
			add(strings.TrimSpace(m), 0.6)
		}
	}
	return out, nil
}
