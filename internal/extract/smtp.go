package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/metrics"
	"github.com/miekg/dns"
	"golang.org/x/sync/semaphore"
)

// Verdict is the outcome of a mailbox probe.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictExists
	VerdictRejected
)

func (v Verdict) String() string {
	switch v {
	case VerdictExists:
		return "exists"
	case VerdictRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Verifier checks whether a mailbox exists without sending mail.
type Verifier interface {
	Verify(ctx context.Context, email string) Verdict
}

// MXResolver returns the mail host for a domain.
type MXResolver interface {
	MailHost(ctx context.Context, domain string) (string, error)
}

// ErrNoMailHost means the domain publishes neither MX nor A records.
var ErrNoMailHost = errors.New("no mail host")

// DNSResolver resolves MX records against fixed upstream servers.
type DNSResolver struct {
	Servers []string
	client  *dns.Client
}

// NewDNSResolver returns a resolver using servers, or public resolvers
// when none are given.
func NewDNSResolver(timeout time.Duration, servers ...string) *DNSResolver {
	if len(servers) == 0 {
		servers = []string{"8.8.8.8:53", "1.1.1.1:53"}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &DNSResolver{Servers: servers, client: &dns.Client{Timeout: timeout}}
}

// MailHost returns the most preferred MX host (lowest preference value),
// falling back to the domain itself when it has an A record.
func (r *DNSResolver) MailHost(ctx context.Context, domain string) (string, error) {
	var lastErr error
	for _, server := range r.Servers {
		resp, err := r.exchange(ctx, domain, dns.TypeMX, server)
		if err != nil {
			lastErr = err
			continue
		}
		var best *dns.MX
		for _, rr := range resp.Answer {
			if mx, ok := rr.(*dns.MX); ok && (best == nil || mx.Preference < best.Preference) {
				best = mx
			}
		}
		if best != nil {
			return strings.TrimSuffix(best.Mx, "."), nil
		}
		if a, err := r.exchange(ctx, domain, dns.TypeA, server); err == nil && len(a.Answer) > 0 {
			return domain, nil
		}
		return "", ErrNoMailHost
	}
	return "", fmt.Errorf("resolve mx %s: %w", domain, lastErr)
}

func (r *DNSResolver) exchange(ctx context.Context, domain string, qtype uint16, server string) (*dns.Msg, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(domain), qtype)
	msg.RecursionDesired = true
	resp, _, err := r.client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode == dns.RcodeNameError {
		return nil, ErrNoMailHost
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("rcode %s", dns.RcodeToString[resp.Rcode])
	}
	return resp, nil
}

// SMTPConfig configures RCPT-based mailbox verification.
type SMTPConfig struct {
	HeloHost    string
	MailFrom    string
	Port        string
	Timeout     time.Duration
	Concurrency int64
}

// SMTPVerifier probes mailboxes with HELO, MAIL FROM and RCPT TO, then quits.
type SMTPVerifier struct {
	cfg      SMTPConfig
	resolver MXResolver
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewSMTPVerifier returns a verifier. Concurrency bounds open connections
// across all targets.
func NewSMTPVerifier(cfg SMTPConfig, resolver MXResolver, logger *slog.Logger) *SMTPVerifier {
	if cfg.HeloHost == "" {
		cfg.HeloHost = "localhost"
	}
	if cfg.MailFrom == "" {
		cfg.MailFrom = "verify@" + cfg.HeloHost
	}
	if cfg.Port == "" {
		cfg.Port = "25"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	d := &net.Dialer{Timeout: cfg.Timeout}
	return &SMTPVerifier{
		cfg:      cfg,
		resolver: resolver,
		dial:     d.DialContext,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		logger:   logger,
	}
}

var _ Verifier = (*SMTPVerifier)(nil)

// Verify returns VerdictExists on a 2xx RCPT reply, VerdictRejected on a
// permanent 55x mailbox error, and VerdictUnknown for everything else.
func (v *SMTPVerifier) Verify(ctx context.Context, email string) Verdict {
	verdict := v.verify(ctx, email)
	metrics.SMTPVerdicts.WithLabelValues(verdict.String()).Inc()
	return verdict
}

func (v *SMTPVerifier) verify(ctx context.Context, email string) Verdict {
	domain := contact.EmailDomain(email)
	if domain == "" {
		return VerdictUnknown
	}
	if err := v.sem.Acquire(ctx, 1); err != nil {
		return VerdictUnknown
	}
	defer v.sem.Release(1)

	host, err := v.resolver.MailHost(ctx, domain)
	if err != nil {
		v.logger.Debug("no mail host", "domain", domain, "err", err)
		return VerdictUnknown
	}

	conn, err := v.dial(ctx, "tcp", net.JoinHostPort(host, v.cfg.Port))
	if err != nil {
		v.logger.Debug("smtp dial failed", "host", host, "err", err)
		return VerdictUnknown
	}
	defer conn.Close()

	deadline := time.Now().Add(v.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		return VerdictUnknown
	}
	defer c.Close()

	if err := c.Hello(v.cfg.HeloHost); err != nil {
		return VerdictUnknown
	}
	if err := c.Mail(v.cfg.MailFrom); err != nil {
		return VerdictUnknown
	}
	err = c.Rcpt(email)
	_ = c.Quit()
	if err == nil {
		return VerdictExists
	}
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 550 && tpErr.Code <= 553 {
		return VerdictRejected
	}
	return VerdictUnknown
}
