package extract

import (
	"context"
	"encoding/hex"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/ldjson"
	"github.com/FranksOps/linkscout/pkg/domainutil"
)

var (
	plainRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9-]+(?:\.[a-zA-Z0-9-]+)*\.[a-zA-Z]{2,24}`)

	bracketAtRe  = regexp.MustCompile(`(?i)\s*[\[\(\{<]\s*(?:at|@)\s*[\]\)\}>]\s*`)
	bracketDotRe = regexp.MustCompile(`(?i)\s*[\[\(\{<]\s*(?:dot|\.)\s*[\]\)\}>]\s*`)
	wordAtRe     = regexp.MustCompile(`(?i)\b([a-z0-9._%+-]+)\s+at\s+((?:[a-z0-9-]+\s+dot\s+)+[a-z]{2,24})\b`)
	wordDotRe    = regexp.MustCompile(`(?i)\s+dot\s+`)

	jsConcatRe = regexp.MustCompile(`(?:'[^'\\\n]*'|"[^"\\\n]*")(?:\s*\+\s*(?:'[^'\\\n]*'|"[^"\\\n]*"))+`)
	literalRe  = regexp.MustCompile(`'([^'\\\n]*)'|"([^"\\\n]*)"`)
	charCodeRe = regexp.MustCompile(`String\.fromCharCode\(\s*([\d\s,]+)\)`)
)

// Email finds addresses in page content: mailto links, plain text,
// bracket/word obfuscation, entity encoding (decoded by the tokenizer),
// JavaScript string concatenation, Cloudflare email protection and JSON-LD.
type Email struct{}

// NewEmail returns the email pattern extractor.
func NewEmail() *Email { return &Email{} }

func (*Email) Name() string       { return contact.TechniqueEmailPattern }
func (*Email) Tier() contact.Tier { return contact.TierPattern }
func (*Email) Scope() Scope       { return ScopePage }

func (e *Email) Extract(_ context.Context, in *Input) ([]contact.Signal, error) {
	var out []contact.Signal
	index := make(map[string]int)

	for _, p := range pagesOf(in) {
		site := domainutil.RootDomain(in.Domain)
		if site == "" {
			site = domainutil.RootDomainOf(p.URL)
		}
		add := func(raw string, conf float64) {
			addr := contact.NormalizeEmail(raw)
			if addr == "" || !contact.AcceptableEmail(addr) {
				return
			}
			if i, ok := index[addr]; ok {
				if conf > out[i].Confidence {
					out[i].Confidence = conf
				}
				return
			}
			index[addr] = len(out)
			out = append(out, signal(contact.KindEmail, addr, e.Name(), e.Tier(), conf, p.URL))
		}

		sc := p.scanned()
		for _, m := range sc.mailtos {
			for _, addr := range mailtoAddresses(m) {
				add(addr, 0.95)
			}
		}
		for _, h := range sc.cfEmails {
			if addr, ok := decodeCFEmail(h); ok {
				add(addr, 0.9)
			}
		}
		for _, m := range plainRe.FindAllString(sc.text, -1) {
			add(m, 0.9)
		}
		for _, m := range plainRe.FindAllString(deobfuscateBrackets(sc.text), -1) {
			add(m, 0.8)
		}
		for _, m := range spelledOut(sc.text, site) {
			add(m, 0.8)
		}
		for _, a := range sc.attrText {
			for _, m := range plainRe.FindAllString(deobfuscateBrackets(a), -1) {
				add(m, 0.75)
			}
			for _, m := range spelledOut(a, site) {
				add(m, 0.75)
			}
		}
		for _, js := range sc.scripts {
			for _, s := range JSStrings(js) {
				for _, m := range plainRe.FindAllString(s, -1) {
					add(m, 0.8)
				}
			}
		}
		if doc, err := p.Document(); err == nil {
			ld := ldjson.FromDocument(doc)
			for _, m := range ld.Emails {
				add(strings.TrimPrefix(m, "mailto:"), 0.9)
			}
			for _, cp := range ld.ContactPoints {
				add(strings.TrimPrefix(cp.Email, "mailto:"), 0.9)
			}
			for _, person := range ld.People {
				add(strings.TrimPrefix(person.Email, "mailto:"), 0.9)
			}
		}
	}
	return out, nil
}

// Deobfuscate rewrites "[at]", "(at)", "{dot}" and the spelled-out
// "user at domain dot com" forms into plain address syntax. Text without
// such tokens is returned unchanged.
func Deobfuscate(s string) string {
	return wordAtRe.ReplaceAllStringFunc(deobfuscateBrackets(s), func(m string) string {
		sub := wordAtRe.FindStringSubmatch(m)
		return sub[1] + "@" + wordDotRe.ReplaceAllString(sub[2], ".")
	})
}

func deobfuscateBrackets(s string) string {
	s = bracketAtRe.ReplaceAllString(s, "@")
	return bracketDotRe.ReplaceAllString(s, ".")
}

// spelledOut returns "user at domain dot tld" addresses whose domain belongs
// to site. Ordinary prose ("available at Amazon dot com") matches the same
// shape, so other domains are dropped.
func spelledOut(s, site string) []string {
	if site == "" {
		return nil
	}
	var out []string
	for _, sub := range wordAtRe.FindAllStringSubmatch(s, -1) {
		host := strings.ToLower(wordDotRe.ReplaceAllString(sub[2], "."))
		if domainutil.RootDomain(host) != site {
			continue
		}
		out = append(out, sub[1]+"@"+host)
	}
	return out
}

// JSStrings returns the strings a script spells out without running it:
// concatenated string literals ('a' + '@' + 'b.com'), String.fromCharCode
// calls with numeric arguments, and single literals containing '@'.
func JSStrings(js string) []string {
	var out []string
	for _, m := range jsConcatRe.FindAllString(js, -1) {
		var b strings.Builder
		for _, lit := range literalRe.FindAllStringSubmatch(m, -1) {
			b.WriteString(lit[1])
			b.WriteString(lit[2])
		}
		out = append(out, b.String())
	}
	for _, m := range charCodeRe.FindAllStringSubmatch(js, -1) {
		var b strings.Builder
		for _, n := range strings.Split(m[1], ",") {
			code, err := strconv.Atoi(strings.TrimSpace(n))
			if err != nil || code < 32 || code > 126 {
				b.Reset()
				break
			}
			b.WriteByte(byte(code))
		}
		if b.Len() > 0 {
			out = append(out, b.String())
		}
	}
	for _, lit := range literalRe.FindAllStringSubmatch(js, -1) {
		if s := lit[1] + lit[2]; strings.Contains(s, "@") {
			out = append(out, s)
		}
	}
	return out
}

// mailtoAddresses returns the recipients of a mailto: href.
func mailtoAddresses(href string) []string {
	v := strings.TrimSpace(href)
	if len(v) >= 7 && strings.EqualFold(v[:7], "mailto:") {
		v = v[7:]
	}
	if i := strings.IndexByte(v, '?'); i >= 0 {
		v = v[:i]
	}
	if un, err := url.PathUnescape(v); err == nil {
		v = un
	}
	var out []string
	for _, a := range strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ';' }) {
		out = append(out, strings.TrimSpace(a))
	}
	return out
}

// decodeCFEmail reverses Cloudflare's email protection: the first byte is an
// XOR key for the rest.
func decodeCFEmail(h string) (string, bool) {
	raw, err := hex.DecodeString(strings.TrimSpace(h))
	if err != nil || len(raw) < 2 {
		return "", false
	}
	key := raw[0]
	out := make([]byte, len(raw)-1)
	for i, b := range raw[1:] {
		out[i] = b ^ key
	}
	return string(out), true
}
