// Package fetcher is the politeness-aware HTTP client every other stage
// goes through: per-root-domain throttling, retry with backoff, browser
// header rotation and bot-challenge detection.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/bypass"
	"github.com/FranksOps/linkscout/internal/fingerprint"
	"github.com/FranksOps/linkscout/internal/metrics"
	"github.com/FranksOps/linkscout/pkg/domainutil"
	"github.com/FranksOps/linkscout/pkg/httpclient"
	"github.com/FranksOps/linkscout/pkg/proxy"
	"github.com/FranksOps/linkscout/pkg/throttle"
	"github.com/FranksOps/linkscout/pkg/useragent"
	"golang.org/x/net/html/charset"
)

// ErrNoContent is wrapped by Page.Error when a fetch produced nothing usable.
var ErrNoContent = errors.New("no content")

// Class says how a failed fetch should be treated.
type Class string

const (
	ClassNone      Class = ""
	ClassTransient Class = "transient"
	ClassPermanent Class = "permanent"
	// ClassBlocked is a bot-protection challenge; retried like a transient.
	ClassBlocked Class = "blocked"
)

type contextKey string

const proxyKey contextKey = "proxy_url"

// Page is the outcome of Fetch. Failures are described, never returned as
// Go errors: callers check OK and fall back on their own.
type Page struct {
	// URL is the URL that was asked for.
	URL string
	// FinalURL is where the content came from after redirects or the root
	// fallback.
	FinalURL string
	Status   int
	Header   http.Header
	HTML     string
	OK       bool
	Class    Class
	Err      string
	// Blocker names the bot-protection vendor when Class is ClassBlocked.
	Blocker  string
	Attempts int
	// FellBack is set when the content is the root page served after a 404.
	FellBack bool
	Duration time.Duration
}

// Error returns nil for a successful page and an ErrNoContent wrap otherwise.
func (p *Page) Error() error {
	if p == nil {
		return ErrNoContent
	}
	if p.OK {
		return nil
	}
	return fmt.Errorf("%s (%s): %w", p.Err, p.Class, ErrNoContent)
}

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	MaxRedirects int
	UseCookieJar bool
	Fingerprint  fingerprint.Profile
	ProxyPool    *proxy.Pool
	UAPool       *useragent.Pool
	// Throttle is shared across every worker; nil means no politeness gate.
	Throttle *throttle.State
	// BackoffBase and BackoffMax bound the retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// MaxBodyBytes truncates large responses (default 4 MiB).
	MaxBodyBytes int64
	Detectors    []bypass.Detector
}

// Fetcher performs throttled, retried GET and HEAD requests.
type Fetcher struct {
	cfg    Config
	client *httpclient.Client
	head   *httpclient.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// New builds a Fetcher. The transport is created once so connections and
// cookies are reused across requests.
func New(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UAPool == nil {
		cfg.UAPool = useragent.NewPool(nil)
	}
	if cfg.Fingerprint == "" {
		cfg.Fingerprint = fingerprint.ProfileChrome
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Second
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 4 << 20
	}
	if cfg.Detectors == nil {
		cfg.Detectors = bypass.DefaultDetectors()
	}
	if logger == nil {
		logger = slog.Default()
	}

	// The proxy is chosen per request and carried on the request context.
	proxyFunc := func(req *http.Request) (*url.URL, error) {
		if u, ok := req.Context().Value(proxyKey).(*url.URL); ok && u != nil {
			return u, nil
		}
		return http.ProxyFromEnvironment(req)
	}

	transport, err := fingerprint.Transport(fingerprint.Config{Profile: cfg.Fingerprint, Proxy: proxyFunc})
	if err != nil {
		return nil, fmt.Errorf("fetcher transport: %w", err)
	}

	// Redirect hops go through the same politeness gate as first requests.
	var beforeRedirect func(*http.Request) error
	if cfg.Throttle != nil {
		gate := cfg.Throttle
		beforeRedirect = func(req *http.Request) error {
			return waitThrottle(req.Context(), gate, req.URL.Host)
		}
	}

	client, err := httpclient.New(httpclient.Config{
		Timeout:        cfg.Timeout,
		MaxRedirects:   cfg.MaxRedirects,
		UseCookieJar:   cfg.UseCookieJar,
		Transport:      transport,
		BeforeRedirect: beforeRedirect,
	})
	if err != nil {
		return nil, fmt.Errorf("fetcher client: %w", err)
	}
	head, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: -1,
		Transport:    transport,
	})
	if err != nil {
		return nil, fmt.Errorf("fetcher head client: %w", err)
	}

	return &Fetcher{
		cfg:    cfg,
		client: client,
		head:   head,
		logger: logger,
		sleep:  sleepCtx,
	}, nil
}

// Fetch GETs rawURL, retrying transient failures up to maxRetries times.
// A 404 triggers exactly one fallback fetch of the site's root path.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxRetries int) *Page {
	p := f.Get(ctx, rawURL, maxRetries)
	if p.OK || p.Status != http.StatusNotFound || ctx.Err() != nil {
		return p
	}

	root := domainutil.RootURL(rawURL)
	if root == "" || strings.TrimRight(root, "/") == strings.TrimRight(rawURL, "/") {
		return p
	}
	f.logger.Debug("404, falling back to root", "url", rawURL, "root", root)
	fb := f.Get(ctx, root, maxRetries)
	fb.URL = rawURL
	fb.FellBack = true
	fb.Attempts += p.Attempts
	if !fb.OK {
		fb.Err = fmt.Sprintf("%s; root fallback: %s", p.Err, fb.Err)
	}
	return fb
}

// Get is Fetch without the root fallback, for resources such as robots.txt
// and sitemaps whose absence must not be papered over by the home page.
func (f *Fetcher) Get(ctx context.Context, rawURL string, maxRetries int) *Page {
	if maxRetries < 0 {
		maxRetries = 0
	}
	start := time.Now()

	var p *Page
	for attempt := 0; ; attempt++ {
		var retryAfter time.Duration
		p, retryAfter = f.attempt(ctx, rawURL)
		p.Attempts = attempt + 1

		if p.OK || p.Class == ClassPermanent || attempt >= maxRetries || ctx.Err() != nil {
			break
		}

		delay := f.backoff(attempt)
		if retryAfter > delay && retryAfter <= f.cfg.BackoffMax {
			delay = retryAfter
		}
		f.logger.Debug("retrying fetch", "url", rawURL, "attempt", attempt+1, "class", p.Class, "delay", delay, "err", p.Err)
		if err := f.sleep(ctx, delay); err != nil {
			p.Err = fmt.Sprintf("%s; retry aborted: %v", p.Err, err)
			break
		}
	}

	p.Duration = time.Since(start)
	return p
}

// backoff is base * 2^attempt * (1 + rand[0,0.3)), capped at BackoffMax.
func (f *Fetcher) backoff(attempt int) time.Duration {
	d := float64(f.cfg.BackoffBase) * math.Pow(2, float64(attempt)) * (1 + 0.3*rand.Float64())
	if d > float64(f.cfg.BackoffMax) {
		return f.cfg.BackoffMax
	}
	return time.Duration(d)
}

func (f *Fetcher) attempt(ctx context.Context, rawURL string) (*Page, time.Duration) {
	p := &Page{URL: rawURL, FinalURL: rawURL}

	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		p.Class = ClassPermanent
		p.Err = fmt.Sprintf("invalid url %q", rawURL)
		return p, 0
	}
	domain := domainutil.RootDomain(u.Host)

	req, activeProxy, err := f.newRequest(ctx, http.MethodGet, u)
	if err != nil {
		p.Class = ClassPermanent
		p.Err = err.Error()
		return p, 0
	}

	start := time.Now()
	resp, err := f.client.Do(req.Context(), req)
	if err != nil {
		f.reportProxy(activeProxy, false)
		p.Class = classifyErr(err)
		p.Err = fmt.Sprintf("request failed: %v", err)
		metrics.RecordFetch(domain, string(p.Class), time.Since(start), 0)
		return p, 0
	}
	defer resp.Body.Close()
	f.reportProxy(activeProxy, resp.StatusCode < 500)

	p.Status = resp.StatusCode
	p.Header = resp.Header
	if resp.Request != nil && resp.Request.URL != nil {
		p.FinalURL = resp.Request.URL.String()
	}

	body, readErr := f.readBody(resp)

	if vendor, blocked := bypass.Detect(&bypass.Response{Status: resp.StatusCode, Header: resp.Header, Body: body}, f.cfg.Detectors); blocked {
		p.Class = ClassBlocked
		p.Blocker = vendor
		p.Err = fmt.Sprintf("challenged by %s (status %d)", vendor, resp.StatusCode)
		metrics.RecordFetch(domain, string(p.Class), time.Since(start), len(body))
		return p, retryAfter(resp)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		p.Class = ClassTransient
		p.Err = fmt.Sprintf("status %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		p.Class = ClassPermanent
		p.Err = fmt.Sprintf("status %d", resp.StatusCode)
	case resp.StatusCode >= 300:
		p.Class = ClassPermanent
		p.Err = fmt.Sprintf("unfollowed redirect %d", resp.StatusCode)
	case readErr != nil:
		p.Class = ClassTransient
		p.Err = fmt.Sprintf("read body: %v", readErr)
	case !textual(resp.Header.Get("Content-Type")):
		p.Class = ClassPermanent
		p.Err = fmt.Sprintf("unsupported content type %q", resp.Header.Get("Content-Type"))
	default:
		p.OK = true
		p.HTML = string(body)
	}

	outcome := "ok"
	if !p.OK {
		outcome = string(p.Class)
	}
	metrics.RecordFetch(domain, outcome, time.Since(start), len(body))
	return p, retryAfter(resp)
}

// Head reports whether rawURL answers 2xx or 3xx to a HEAD request. Servers
// that refuse HEAD (405, 501) are asked with GET instead.
func (f *Fetcher) Head(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	status := f.probe(ctx, http.MethodHead, u)
	if status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented {
		status = f.probe(ctx, http.MethodGet, u)
	}
	return status >= 200 && status < 400
}

func (f *Fetcher) probe(ctx context.Context, method string, u *url.URL) int {
	req, activeProxy, err := f.newRequest(ctx, method, u)
	if err != nil {
		return 0
	}
	start := time.Now()
	resp, err := f.head.Do(req.Context(), req)
	domain := domainutil.RootDomain(u.Host)
	if err != nil {
		f.reportProxy(activeProxy, false)
		metrics.RecordFetch(domain, "probe_error", time.Since(start), 0)
		f.logger.Debug("probe failed", "method", method, "url", u.String(), "err", err)
		return 0
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
	f.reportProxy(activeProxy, resp.StatusCode < 500)
	metrics.RecordFetch(domain, "probe", time.Since(start), 0)
	return resp.StatusCode
}

// newRequest waits on the politeness gate, picks a proxy and a browser
// profile, and builds the request.
func (f *Fetcher) newRequest(ctx context.Context, method string, u *url.URL) (*http.Request, *url.URL, error) {
	if f.cfg.Throttle != nil {
		if err := waitThrottle(ctx, f.cfg.Throttle, u.Host); err != nil {
			return nil, nil, err
		}
	}

	var activeProxy *url.URL
	if f.cfg.ProxyPool != nil {
		activeProxy = f.cfg.ProxyPool.Next()
	}
	if activeProxy != nil {
		ctx = context.WithValue(ctx, proxyKey, activeProxy)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	f.cfg.UAPool.Next().Apply(req.Header)
	return req, activeProxy, nil
}

func waitThrottle(ctx context.Context, gate *throttle.State, host string) error {
	waited, err := gate.Wait(ctx, host)
	metrics.ThrottleWait.Observe(waited.Seconds())
	if err != nil {
		return fmt.Errorf("throttle: %w", err)
	}
	return nil
}

func (f *Fetcher) reportProxy(u *url.URL, ok bool) {
	if u == nil {
		return
	}
	if !ok {
		metrics.ProxyFailures.WithLabelValues(u.String()).Inc()
	}
	if err := f.cfg.ProxyPool.Report(u, ok); err != nil {
		f.logger.Debug("proxy report", "proxy", u.String(), "err", err)
	}
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	limited := io.LimitReader(resp.Body, f.cfg.MaxBodyBytes)
	r, err := charset.NewReader(limited, resp.Header.Get("Content-Type"))
	if err != nil {
		r = limited
	}
	return io.ReadAll(r)
}

// classifyErr separates failures worth retrying from those that are not.
func classifyErr(err error) Class {
	if errors.Is(err, httpclient.ErrTooManyRedirects) || errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return ClassPermanent
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && strings.Contains(urlErr.Err.Error(), "unsupported protocol scheme") {
		return ClassPermanent
	}
	return ClassTransient
}

func textual(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	for _, ok := range []string{"text/", "html", "xml", "json", "javascript"} {
		if strings.Contains(ct, ok) {
			return true
		}
	}
	return false
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
