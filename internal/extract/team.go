package extract

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/ldjson"
	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultAliases are the role mailboxes tried after person permutations.
var DefaultAliases = []string{"contact", "hello", "info", "team", "editor", "press"}

const (
	teamContainerSel = `[class*="team"], [class*="member"], [class*="staff"], [class*="people"], [class*="person"], [class*="leadership"], [class*="bio"]`
	teamNameSel      = `h2, h3, h4, h5, strong, [class*="name"]`
	teamTitleSel     = `[class*="title"], [class*="role"], [class*="position"], [class*="job"]`
)

// honorifics are dropped before splitting a name.
var honorifics = map[string]bool{"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true, "sir": true}

// nonNameWords disqualify a heading from being a person's name.
var nonNameWords = map[string]bool{
	"our": true, "team": true, "meet": true, "about": true, "contact": true, "the": true,
	"us": true, "leadership": true, "staff": true, "people": true, "join": true, "careers": true,
	"founders": true, "board": true, "advisors": true, "news": true, "read": true, "more": true,
	"chief": true, "officer": true, "executive": true, "director": true, "manager": true,
	"founder": true, "co-founder": true, "head": true, "editor": true, "president": true,
	"engineer": true, "designer": true, "partner": true, "lead": true, "marketing": true,
	"sales": true, "of": true, "and": true,
}

// TeamConfig bounds the permutation technique.
type TeamConfig struct {
	MaxPeople       int
	MaxPermutations int
	MaxVerify       int
	Aliases         []string
}

// Team finds named people on about/team pages, records the first as the
// contact person, and guesses their addresses. Guesses are only kept once
// a Verifier confirms them.
type Team struct {
	cfg      TeamConfig
	verifier Verifier
	logger   *slog.Logger
}

// NewTeam returns the team extractor. A nil verifier disables guessing.
func NewTeam(cfg TeamConfig, verifier Verifier, logger *slog.Logger) *Team {
	if cfg.MaxPeople <= 0 {
		cfg.MaxPeople = 5
	}
	if cfg.MaxPermutations <= 0 {
		cfg.MaxPermutations = 12
	}
	if cfg.MaxVerify <= 0 {
		cfg.MaxVerify = 5
	}
	if cfg.Aliases == nil {
		cfg.Aliases = DefaultAliases
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Team{cfg: cfg, verifier: verifier, logger: logger}
}

func (*Team) Name() string       { return contact.TechniqueTeam }
func (*Team) Tier() contact.Tier { return contact.TierInferred }
func (*Team) Scope() Scope       { return ScopeTarget }

func (t *Team) Extract(ctx context.Context, in *Input) ([]contact.Signal, error) {
	people := findPeople(pagesOf(in), t.cfg.MaxPeople)
	if len(people) == 0 && t.verifier == nil {
		return nil, ErrNotApplicable
	}

	var out []contact.Signal
	names := make([]string, 0, len(people))
	for _, p := range people {
		s := signal(contact.KindPerson, p.person.Name, t.Name(), contact.TierStructural, p.confidence, p.source)
		person := p.person
		s.Person = &person
		out = append(out, s)
		names = append(names, p.person.Name)
	}

	if t.verifier == nil || in.Domain == "" {
		return out, nil
	}

	probe := "zz-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16] + "@" + in.Domain
	if t.verifier.Verify(ctx, probe) == VerdictExists {
		t.logger.Debug("catch-all mail host, skipping guesses", "domain", in.Domain)
		return out, nil
	}

	known := make(map[string]bool)
	if in.Found != nil {
		for _, e := range in.Found.Emails {
			known[e] = true
		}
	}
	verified := 0
	for _, cand := range Permutations(names, t.cfg.Aliases, in.Domain, t.cfg.MaxPermutations) {
		if verified >= t.cfg.MaxVerify || ctx.Err() != nil {
			break
		}
		if known[cand] {
			continue
		}
		verified++
		if t.verifier.Verify(ctx, cand) == VerdictExists {
			out = append(out, signal(contact.KindEmail, cand, t.Name(), t.Tier(), 0.6, "smtp:"+in.Domain))
		}
	}
	if len(out) == 0 {
		return nil, ErrNotApplicable
	}
	return out, nil
}

// Permutations returns candidate addresses for the given names followed by
// the role aliases, deduplicated and capped at limit.
func Permutations(names, aliases []string, domain string, limit int) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(local string) {
		if local == "" || len(out) >= limit {
			return
		}
		addr := contact.NormalizeEmail(local + "@" + domain)
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}

	for _, n := range names {
		first, last := SplitName(n)
		if first == "" {
			continue
		}
		if last == "" {
			add(first)
			continue
		}
		fi := first[:1]
		add(first + "." + last)
		add(first + last)
		add(fi + last)
		add(first)
		add(first + "_" + last)
		add(first + last[:1])
	}
	for _, a := range aliases {
		add(a)
	}
	return out
}

// SplitName folds a display name to ASCII and returns its first and last
// parts, dropping honorifics and non-letters.
func SplitName(name string) (first, last string) {
	var parts []string
	for _, w := range strings.Fields(foldName(name)) {
		w = strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' {
				return r
			}
			return -1
		}, w)
		if w == "" || honorifics[w] {
			continue
		}
		parts = append(parts, w)
	}
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	}
	return parts[0], parts[len(parts)-1]
}

var umlauts = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "Ä", "ae", "Ö", "oe", "Ü", "ue", "ß", "ss")

func foldName(s string) string {
	s = umlauts.Replace(s)
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

type foundPerson struct {
	person     contact.Person
	confidence float64
	source     string
}

func findPeople(pages []*Page, limit int) []foundPerson {
	var out []foundPerson
	seen := make(map[string]bool)
	add := func(name, title string, conf float64, source string) {
		name = strings.Join(strings.Fields(name), " ")
		key := strings.ToLower(name)
		if len(out) >= limit || seen[key] || !LooksLikeName(name) {
			return
		}
		seen[key] = true
		out = append(out, foundPerson{
			person:     contact.Person{Name: name, Title: strings.Join(strings.Fields(title), " ")},
			confidence: conf,
			source:     source,
		})
	}

	for _, p := range pages {
		doc, err := p.Document()
		if err != nil {
			continue
		}
		for _, person := range ldjson.FromDocument(doc).People {
			add(person.Name, person.JobTitle, 0.85, p.URL)
		}
		doc.Find(teamContainerSel).Each(func(_ int, c *goquery.Selection) {
			c.Find(teamNameSel).Each(func(_ int, h *goquery.Selection) {
				name := strings.TrimSpace(h.Text())
				if !LooksLikeName(name) {
					return
				}
				title := nearbyTitle(c, h)
				conf := 0.6
				if title != "" {
					conf = 0.75
				}
				add(name, title, conf, p.URL)
			})
		})
	}
	return out
}

// nearbyTitle returns the job title next to a name heading, if any.
func nearbyTitle(container, heading *goquery.Selection) string {
	candidates := []string{
		strings.TrimSpace(heading.NextAllFiltered("p, span, em, small, h4, h5, h6, div").First().Text()),
		strings.TrimSpace(container.Find(teamTitleSel).First().Text()),
	}
	for _, t := range candidates {
		t = strings.Join(strings.Fields(t), " ")
		if t != "" && len(t) <= 80 && !LooksLikeName(t) {
			return t
		}
	}
	return ""
}

// LooksLikeName reports whether s reads as a person's name: two to four
// capitalised words made of letters, apostrophes, hyphens or dots.
func LooksLikeName(s string) bool {
	if len(s) > 40 {
		return false
	}
	words := strings.Fields(s)
	if len(words) < 2 || len(words) > 4 {
		return false
	}
	for _, w := range words {
		if nonNameWords[strings.ToLower(w)] {
			return false
		}
		for i, r := range w {
			if i == 0 && !unicode.IsUpper(r) {
				return false
			}
			if !unicode.IsLetter(r) && r != '\'' && r != '-' && r != '.' {
				return false
			}
		}
	}
	return true
}
