package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FranksOps/linkscout/internal/config"
	"github.com/FranksOps/linkscout/internal/engine"
	"github.com/FranksOps/linkscout/internal/extract"
	"github.com/FranksOps/linkscout/internal/fetcher"
	"github.com/FranksOps/linkscout/internal/fingerprint"
	"github.com/FranksOps/linkscout/internal/locator"
	"github.com/FranksOps/linkscout/internal/storage"
	"github.com/FranksOps/linkscout/internal/storage/csvbackend"
	"github.com/FranksOps/linkscout/internal/storage/jsonbackend"
	"github.com/FranksOps/linkscout/internal/storage/postgres"
	"github.com/FranksOps/linkscout/internal/storage/sqlite"
	"github.com/FranksOps/linkscout/pkg/proxy"
	"github.com/FranksOps/linkscout/pkg/throttle"
	"github.com/FranksOps/linkscout/pkg/useragent"
)

func openBackend(ctx context.Context, c *config.Config) (storage.Backend, error) {
	switch c.Storage.Backend {
	case "json":
		return jsonbackend.New(c.Storage.DSN)
	case "csv":
		return csvbackend.New(c.Storage.DSN)
	case "sqlite":
		return sqlite.New(c.Storage.DSN)
	case "postgres":
		return postgres.New(ctx, c.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
}

func newFetcher(c *config.Config, logger *slog.Logger) (*fetcher.Fetcher, error) {
	profile, err := fingerprint.ParseProfile(c.Fingerprint)
	if err != nil {
		return nil, err
	}

	var proxies *proxy.Pool
	if c.ProxyFile != "" {
		proxies = proxy.NewPool(proxy.Config{})
		if err := proxies.LoadFile(c.ProxyFile); err != nil {
			return nil, fmt.Errorf("load proxies: %w", err)
		}
		logger.Info("proxies loaded", "count", proxies.Len())
	}

	return fetcher.New(fetcher.Config{
		Timeout:      c.RequestTimeout(),
		MaxRedirects: c.MaxRedirects,
		UseCookieJar: true,
		Fingerprint:  profile,
		ProxyPool:    proxies,
		UAPool:       useragent.NewPool(c.UserAgents),
		Throttle: throttle.New(throttle.Config{
			Interval:  c.ThrottleInterval(),
			Jitter:    c.ThrottleJitter,
			GlobalRPS: c.GlobalRPS,
		}),
		BackoffBase: c.BackoffBase(),
		BackoffMax:  c.BackoffMax(),
	}, logger)
}

// newEngine assembles the fetch, locate and extract stack described by c.
func newEngine(c *config.Config, onResult func(engine.Result), logger *slog.Logger) (*engine.Engine, error) {
	f, err := newFetcher(c, logger)
	if err != nil {
		return nil, err
	}

	loc := locator.New(f, locator.Config{
		MaxPages:      c.MaxPagesPerTarget,
		MaxRetries:    c.MaxRetries,
		RespectRobots: c.RespectRobots,
		UseSitemap:    c.UseSitemap,
	}, logger)

	var whois extract.WhoisClient
	if c.EnableWhois {
		rc, err := extract.NewRegistryClient(c.WhoisTimeout(), logger)
		if err != nil {
			return nil, fmt.Errorf("whois client: %w", err)
		}
		whois = rc
	}

	var verifier extract.Verifier
	if c.EnableSMTPVerification {
		var servers []string
		if c.DNSServer != "" {
			servers = append(servers, c.DNSServer)
		}
		verifier = extract.NewSMTPVerifier(extract.SMTPConfig{
			HeloHost:    c.SMTPHeloHost,
			MailFrom:    c.SMTPMailFrom,
			Timeout:     c.SMTPTimeout(),
			Concurrency: int64(c.SMTPConcurrency),
		}, extract.NewDNSResolver(c.SMTPTimeout(), servers...), logger)
	}

	return engine.New(loc, f, engine.DefaultExtractors(whois, verifier, logger), engine.Config{
		Workers:                 c.WorkerPoolSize,
		MaxRetries:              c.MaxRetries,
		TargetDeadline:          c.TargetDeadline(),
		FallbackTechniques:      c.FallbackTechniques,
		PriorityExtraTechniques: c.PriorityExtraTechniques,
		OnResult:                onResult,
	}, logger), nil
}
