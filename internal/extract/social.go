package extract

import (
	"context"
	"strings"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/ldjson"
	"github.com/FranksOps/linkscout/internal/social"
	"github.com/PuerkitoBio/goquery"
)

// Social matches anchor hrefs and JSON-LD sameAs entries against the known
// platform URL patterns. Icon classes and labels that agree with the parsed
// platform raise confidence.
type Social struct{}

// NewSocial returns the social profile extractor.
func NewSocial() *Social { return &Social{} }

func (*Social) Name() string       { return contact.TechniqueSocial }
func (*Social) Tier() contact.Tier { return contact.TierPattern }
func (*Social) Scope() Scope       { return ScopePage }

func (s *Social) Extract(_ context.Context, in *Input) ([]contact.Signal, error) {
	var out []contact.Signal
	index := make(map[string]int)

	for _, p := range pagesOf(in) {
		doc, err := p.Document()
		if err != nil {
			return out, err
		}
		add := func(raw, display string, conf float64) {
			prof, ok := social.Parse(raw)
			if !ok {
				return
			}
			key := prof.Key()
			if i, seen := index[key]; seen {
				if conf > out[i].Confidence {
					out[i].Confidence = conf
				}
				return
			}
			sig := signal(contact.KindSocial, prof.URL, s.Name(), s.Tier(), conf, p.URL)
			sig.Social = &contact.SocialProfile{
				Platform:    prof.Platform,
				URL:         prof.URL,
				Username:    prof.Username,
				DisplayName: display,
			}
			index[key] = len(out)
			out = append(out, sig)
		}

		for _, u := range ldjson.FromDocument(doc).SameAs {
			add(u, "", 0.9)
		}

		doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			platform := social.PlatformOf(href)
			if platform == "" {
				return
			}
			conf := 0.85
			if hint := iconHint(a); hint == platform {
				conf = 0.95
			}
			add(href, displayName(a, platform), conf)
		})
	}
	return out, nil
}

// iconHint names the platform suggested by the anchor's classes, aria-label,
// title, or an icon element inside it.
func iconHint(a *goquery.Selection) string {
	var parts []string
	for _, attr := range []string{"class", "aria-label", "title"} {
		if v, ok := a.Attr(attr); ok {
			parts = append(parts, v)
		}
	}
	a.Find("i, svg, span, img").Each(func(_ int, el *goquery.Selection) {
		for _, attr := range []string{"class", "alt", "aria-label", "data-icon"} {
			if v, ok := el.Attr(attr); ok {
				parts = append(parts, v)
			}
		}
	})
	hay := strings.ToLower(strings.Join(parts, " "))
	for _, c := range []struct{ needle, platform string }{
		{"linkedin", social.LinkedIn}, {"twitter", social.Twitter}, {"x-twitter", social.Twitter},
		{"facebook", social.Facebook}, {"instagram", social.Instagram}, {"youtube", social.YouTube},
		{"github", social.GitHub}, {"medium", social.Medium}, {"pinterest", social.Pinterest},
		{"tiktok", social.TikTok}, {"threads", social.Threads},
	} {
		if strings.Contains(hay, c.needle) {
			return c.platform
		}
	}
	return ""
}

// displayName keeps anchor text that looks like a handle or name rather than
// a generic label such as "Follow us".
func displayName(a *goquery.Selection, platform string) string {
	t := strings.Join(strings.Fields(a.Text()), " ")
	if len(t) <= 2 || len(t) > 60 {
		return ""
	}
	l := strings.ToLower(t)
	if strings.Contains(l, platform) || strings.Contains(l, "follow") || strings.Contains(l, "connect") ||
		strings.Contains(l, "find us") || strings.Contains(l, "join") {
		return ""
	}
	return t
}
