package extract

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/pkg/httpclient"
)

// WhoisContact is one contact entry from registration data.
type WhoisContact struct {
	Email string
	Name  string
	Org   string
	Roles []string
}

// WhoisRecord is registration data for a domain, from RDAP or port 43.
type WhoisRecord struct {
	// Source is "rdap" or the WHOIS server that answered.
	Source   string
	Contacts []WhoisContact
	// Text is the raw port-43 response, when one was used.
	Text string
}

// WhoisClient looks up registration data for a root domain.
type WhoisClient interface {
	Lookup(ctx context.Context, domain string) (*WhoisRecord, error)
}

// privacyMarkers identify privacy-proxy and redaction services.
var privacyMarkers = []string{
	"privacy", "proxy", "redact", "protect", "whoisguard", "anonymi", "withheld",
	"contactprivacy", "domainsbyproxy", "identity-shield", "masked", "not disclosed",
}

// Whois mines registration data for emails, skipping privacy services and
// registrar or abuse contacts. It is a last-resort technique.
type Whois struct {
	client WhoisClient
}

// NewWhois returns the WHOIS miner.
func NewWhois(client WhoisClient) *Whois { return &Whois{client: client} }

func (*Whois) Name() string       { return contact.TechniqueWhois }
func (*Whois) Tier() contact.Tier { return contact.TierStructural }
func (*Whois) Scope() Scope       { return ScopeTarget }

func (w *Whois) Extract(ctx context.Context, in *Input) ([]contact.Signal, error) {
	if w.client == nil || in.Domain == "" {
		return nil, ErrNotApplicable
	}
	rec, err := w.client.Lookup(ctx, in.Domain)
	if err != nil {
		return nil, fmt.Errorf("whois %s: %w", in.Domain, err)
	}

	source := "whois:" + rec.Source
	var out []contact.Signal
	seen := make(map[string]bool)
	add := func(raw string) {
		addr := contact.NormalizeEmail(raw)
		if addr == "" || seen[addr] || !contact.AcceptableEmail(addr) || isPrivacy(addr) {
			return
		}
		local := addr[:strings.IndexByte(addr, '@')]
		if local == "abuse" || local == "hostmaster" {
			return
		}
		seen[addr] = true
		out = append(out, signal(contact.KindEmail, addr, w.Name(), w.Tier(), 0.7, source))
	}

	for _, c := range rec.Contacts {
		if hasRole(c.Roles, "registrar", "abuse") || isPrivacy(c.Name) || isPrivacy(c.Org) {
			continue
		}
		add(c.Email)
	}
	for _, line := range strings.Split(rec.Text, "\n") {
		l := strings.ToLower(line)
		if strings.Contains(l, "abuse") || strings.Contains(l, "registrar") || isPrivacy(l) {
			continue
		}
		for _, m := range plainRe.FindAllString(line, -1) {
			add(m)
		}
	}
	return out, nil
}

func isPrivacy(s string) bool {
	l := strings.ToLower(s)
	for _, m := range privacyMarkers {
		if strings.Contains(l, m) {
			return true
		}
	}
	return false
}

func hasRole(roles []string, want ...string) bool {
	for _, r := range roles {
		for _, w := range want {
			if strings.EqualFold(r, w) {
				return true
			}
		}
	}
	return false
}

// RegistryClient queries RDAP first and falls back to port-43 WHOIS
// (IANA referral, then the registry and registrar servers).
type RegistryClient struct {
	// RDAPBase is prefixed to the domain; defaults to https://rdap.org/domain/.
	RDAPBase string
	// IANAServer is the port-43 entry point; defaults to whois.iana.org:43.
	IANAServer string
	Timeout    time.Duration

	http   *httpclient.Client
	dialer *net.Dialer
	logger *slog.Logger
}

// NewRegistryClient returns a client with the given per-query timeout.
func NewRegistryClient(timeout time.Duration, logger *slog.Logger) (*RegistryClient, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc, err := httpclient.New(httpclient.Config{Timeout: timeout})
	if err != nil {
		return nil, err
	}
	return &RegistryClient{
		RDAPBase:   "https://rdap.org/domain/",
		IANAServer: "whois.iana.org:43",
		Timeout:    timeout,
		http:       hc,
		dialer:     &net.Dialer{Timeout: timeout},
		logger:     logger,
	}, nil
}

var _ WhoisClient = (*RegistryClient)(nil)

// Lookup returns RDAP data when it carries contacts, otherwise the port-43
// text. Both failing is an error.
func (c *RegistryClient) Lookup(ctx context.Context, domain string) (*WhoisRecord, error) {
	rec, rdapErr := c.rdap(ctx, domain)
	if rdapErr == nil && len(rec.Contacts) > 0 {
		return rec, nil
	}
	if rdapErr != nil {
		c.logger.Debug("rdap lookup failed, trying port 43", "domain", domain, "err", rdapErr)
	}

	text, server, err := c.port43(ctx, domain)
	if err != nil {
		if rec != nil {
			return rec, nil
		}
		return nil, errors.Join(rdapErr, err)
	}
	out := &WhoisRecord{Source: server, Text: text}
	if rec != nil {
		out.Contacts = rec.Contacts
	}
	return out, nil
}

type rdapEntity struct {
	Roles      []string     `json:"roles"`
	VCardArray []any        `json:"vcardArray"`
	Entities   []rdapEntity `json:"entities"`
}

type rdapDomain struct {
	Entities []rdapEntity `json:"entities"`
}

func (c *RegistryClient) rdap(ctx context.Context, domain string) (*WhoisRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.RDAPBase+domain, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rdap+json, application/json")
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rdap status %d", resp.StatusCode)
	}

	var d rdapDomain
	if err := json.NewDecoder(io.LimitReader(resp.Body, 2<<20)).Decode(&d); err != nil {
		return nil, fmt.Errorf("decode rdap: %w", err)
	}
	rec := &WhoisRecord{Source: "rdap"}
	var walk func(es []rdapEntity, depth int)
	walk = func(es []rdapEntity, depth int) {
		if depth > 4 {
			return
		}
		for _, e := range es {
			wc := WhoisContact{
				Email: vcardField(e.VCardArray, "email"),
				Name:  vcardField(e.VCardArray, "fn"),
				Org:   vcardField(e.VCardArray, "org"),
				Roles: e.Roles,
			}
			if wc.Email != "" {
				rec.Contacts = append(rec.Contacts, wc)
			}
			walk(e.Entities, depth+1)
		}
	}
	walk(d.Entities, 0)
	return rec, nil
}

// vcardField reads a jCard property: ["vcard", [["fn", {}, "text", "Jane"], ...]].
func vcardField(card []any, name string) string {
	if len(card) < 2 {
		return ""
	}
	props, ok := card[1].([]any)
	if !ok {
		return ""
	}
	for _, p := range props {
		prop, ok := p.([]any)
		if !ok || len(prop) < 4 {
			continue
		}
		if key, _ := prop[0].(string); key != name {
			continue
		}
		switch v := prop[3].(type) {
		case string:
			return v
		case []any:
			if len(v) > 0 {
				s, _ := v[0].(string)
				return s
			}
		}
	}
	return ""
}

// port43 follows referrals from IANA to the registry, and from a thin
// registry to the registrar, returning the concatenated responses.
func (c *RegistryClient) port43(ctx context.Context, domain string) (string, string, error) {
	server := c.IANAServer
	var all strings.Builder
	seen := make(map[string]bool)

	for hop := 0; hop < 3 && server != "" && !seen[server]; hop++ {
		seen[server] = true
		text, err := c.query(ctx, server, domain)
		if err != nil {
			if all.Len() > 0 {
				break
			}
			return "", server, err
		}
		all.WriteString(text)
		all.WriteByte('\n')
		next := referral(text)
		if next == "" {
			return all.String(), server, nil
		}
		if !strings.Contains(next, ":") {
			next += ":43"
		}
		server = next
	}
	return all.String(), server, nil
}

func (c *RegistryClient) query(ctx context.Context, server, domain string) (string, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", server)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", server, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\r\n", domain); err != nil {
		return "", fmt.Errorf("write %s: %w", server, err)
	}
	b, err := io.ReadAll(io.LimitReader(conn, 1<<20))
	if err != nil && len(b) == 0 {
		return "", fmt.Errorf("read %s: %w", server, err)
	}
	return string(b), nil
}

// referral finds the next WHOIS server in a response.
func referral(text string) string {
	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "refer", "whois", "registrar whois server":
			v = strings.TrimSpace(v)
			v = strings.TrimPrefix(strings.TrimPrefix(v, "whois://"), "rwhois://")
			if v != "" {
				return strings.ToLower(v)
			}
		}
	}
	return ""
}
