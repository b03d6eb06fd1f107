package extract

import (
	"html"
	"strings"

	xhtml "golang.org/x/net/html"
)

// scanned is a single tokenizer pass over a page.
type scanned struct {
	// text is the visible text with entities decoded; script and style
	// bodies are excluded.
	text string
	// scripts holds inline script bodies, JSON-LD excluded.
	scripts []string
	// mailtos are raw mailto: hrefs.
	mailtos []string
	// tels are raw tel: hrefs.
	tels []string
	// cfEmails are Cloudflare email-protection hex payloads.
	cfEmails []string
	// attrText holds title/alt/aria-label/content values, which sometimes
	// carry addresses that never appear as text.
	attrText []string
}

func (p *Page) scanned() *scanned {
	p.scanOnce.Do(func() { p.scan = scanHTML(p.HTML) })
	return p.scan
}

func mayHoldEmail(s string) bool {
	if strings.Contains(s, "@") {
		return true
	}
	l := strings.ToLower(s)
	return strings.Contains(l, "[at]") || strings.Contains(l, "(at)") || strings.Contains(l, " at ")
}

func scanHTML(src string) *scanned {
	s := &scanned{}
	var text strings.Builder
	z := xhtml.NewTokenizer(strings.NewReader(src))

	var skip string // element whose body is not visible text
	var inScript bool

	for {
		tt := z.Next()
		switch tt {
		case xhtml.ErrorToken:
			// io.EOF or a malformed tail; keep what was read either way.
			s.text = text.String()
			return s

		case xhtml.StartTagToken, xhtml.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			var typ string
			for hasAttr {
				var k, v []byte
				k, v, hasAttr = z.TagAttr()
				key, val := string(k), string(v)
				switch key {
				case "href":
					lv := strings.ToLower(strings.TrimSpace(val))
					if strings.HasPrefix(lv, "mailto:") {
						s.mailtos = append(s.mailtos, strings.TrimSpace(val))
					} else if strings.HasPrefix(lv, "tel:") {
						s.tels = append(s.tels, strings.TrimSpace(val))
					} else if i := strings.Index(lv, "/cdn-cgi/l/email-protection#"); i >= 0 {
						s.cfEmails = append(s.cfEmails, val[i+len("/cdn-cgi/l/email-protection#"):])
					}
				case "data-cfemail":
					s.cfEmails = append(s.cfEmails, val)
				case "title", "alt", "aria-label", "content", "value", "placeholder":
					if mayHoldEmail(val) {
						s.attrText = append(s.attrText, val)
					}
				case "type":
					typ = strings.ToLower(val)
				}
			}
			if tt == xhtml.StartTagToken {
				switch tag {
				case "script":
					if !strings.Contains(typ, "ld+json") && !strings.Contains(typ, "template") {
						inScript = true
					}
					skip = tag
				case "style", "template", "svg":
					skip = tag
				}
			}
			if isBlock(tag) {
				text.WriteByte('\n')
			}

		case xhtml.EndTagToken:
			name, _ := z.TagName()
			tag := string(name)
			if tag == skip {
				skip = ""
				inScript = false
			}
			if isBlock(tag) {
				text.WriteByte('\n')
			}

		case xhtml.TextToken:
			raw := string(z.Text())
			if inScript {
				s.scripts = append(s.scripts, raw)
				continue
			}
			if skip != "" {
				continue
			}
			// Text() already decodes entities once; a second pass catches
			// double-encoded forms like &amp;#64;.
			text.WriteString(html.UnescapeString(raw))
			text.WriteByte(' ')
		}
	}
}

func isBlock(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "td", "th", "h1", "h2", "h3", "h4", "h5", "h6",
		"section", "article", "header", "footer", "address", "dd", "dt", "blockquote":
		return true
	}
	return false
}
