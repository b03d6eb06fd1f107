// Package config loads run configuration from defaults, an optional config
// file, LINKSCOUT_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/fingerprint"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// LINKSCOUT_WORKERPOOLSIZE or LINKSCOUT_STORAGE_DSN.
const EnvPrefix = "LINKSCOUT"

// Storage selects the persistence backend.
type Storage struct {
	// Backend is one of json, csv, sqlite, postgres.
	Backend string `mapstructure:"backend"`
	// DSN is a file path for json/csv/sqlite and a connection string for
	// postgres.
	DSN string `mapstructure:"dsn"`
}

// Config is the full set of recognised options.
type Config struct {
	MaxRetries              int      `mapstructure:"maxRetries"`
	ThrottleIntervalMs      int      `mapstructure:"throttleIntervalMs"`
	ThrottleJitter          float64  `mapstructure:"throttleJitter"`
	GlobalRPS               float64  `mapstructure:"globalRps"`
	RequestTimeoutMs        int      `mapstructure:"requestTimeoutMs"`
	WorkerPoolSize          int      `mapstructure:"workerPoolSize"`
	PerTargetDeadlineMs     int      `mapstructure:"perTargetDeadlineMs"`
	EnableSMTPVerification  bool     `mapstructure:"enableSmtpVerification"`
	EnableWhois             bool     `mapstructure:"enableWhois"`
	MaxPagesPerTarget       int      `mapstructure:"maxPagesPerTarget"`
	MaxRedirects            int      `mapstructure:"maxRedirects"`
	BackoffBaseMs           int      `mapstructure:"backoffBaseMs"`
	BackoffMaxMs            int      `mapstructure:"backoffMaxMs"`
	RespectRobots           bool     `mapstructure:"respectRobots"`
	UseSitemap              bool     `mapstructure:"useSitemap"`
	Fingerprint             string   `mapstructure:"fingerprint"`
	ProxyFile               string   `mapstructure:"proxyFile"`
	UserAgents              []string `mapstructure:"userAgents"`
	LogLevel                string   `mapstructure:"logLevel"`
	LogFormat               string   `mapstructure:"logFormat"`
	MetricsPort             int      `mapstructure:"metricsPort"`
	Storage                 Storage  `mapstructure:"storage"`
	SMTPTimeoutMs           int      `mapstructure:"smtpTimeoutMs"`
	SMTPHeloHost            string   `mapstructure:"smtpHeloHost"`
	SMTPMailFrom            string   `mapstructure:"smtpMailFrom"`
	SMTPConcurrency         int      `mapstructure:"smtpConcurrency"`
	DNSServer               string   `mapstructure:"dnsServer"`
	WhoisTimeoutMs          int      `mapstructure:"whoisTimeoutMs"`
	FallbackTechniques      int      `mapstructure:"fallbackTechniques"`
	PriorityExtraTechniques int      `mapstructure:"priorityExtraTechniques"`
}

var defaults = map[string]any{
	"maxRetries":              3,
	"throttleIntervalMs":      3000,
	"throttleJitter":          0.2,
	"globalRps":               0.0,
	"requestTimeoutMs":        15000,
	"workerPoolSize":          5,
	"perTargetDeadlineMs":     120000,
	"enableSmtpVerification":  false,
	"enableWhois":             true,
	"maxPagesPerTarget":       8,
	"maxRedirects":            5,
	"backoffBaseMs":           500,
	"backoffMaxMs":            10000,
	"respectRobots":           true,
	"useSitemap":              true,
	"fingerprint":             "chrome",
	"proxyFile":               "",
	"userAgents":              []string{},
	"logLevel":                "info",
	"logFormat":               "text",
	"metricsPort":             0,
	"storage.backend":         "json",
	"storage.dsn":             "contacts.ndjson",
	"smtpTimeoutMs":           8000,
	"smtpHeloHost":            "",
	"smtpMailFrom":            "",
	"smtpConcurrency":         4,
	"dnsServer":               "",
	"whoisTimeoutMs":          10000,
	"fallbackTechniques":      1,
	"priorityExtraTechniques": 1,
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"max-retries":        "maxRetries",
	"throttle-ms":        "throttleIntervalMs",
	"timeout-ms":         "requestTimeoutMs",
	"workers":            "workerPoolSize",
	"deadline-ms":        "perTargetDeadlineMs",
	"smtp-verify":        "enableSmtpVerification",
	"whois":              "enableWhois",
	"max-pages":          "maxPagesPerTarget",
	"respect-robots":     "respectRobots",
	"sitemap":            "useSitemap",
	"fingerprint":        "fingerprint",
	"proxy-file":         "proxyFile",
	"user-agents":        "userAgents",
	"log-level":          "logLevel",
	"log-format":         "logFormat",
	"metrics-port":       "metricsPort",
	"storage":            "storage.backend",
	"dsn":                "storage.dsn",
	"smtp-helo":          "smtpHeloHost",
	"smtp-from":          "smtpMailFrom",
	"dns-server":         "dnsServer",
	"priority-extra":     "priorityExtraTechniques",
	"fallback-technique": "fallbackTechniques",
}

// New returns a viper instance carrying the defaults and environment
// bindings.
func New() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// AddFlags registers the overridable options on fs. Flag defaults mirror the
// config defaults so --help shows them.
func AddFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.Int("max-retries", 3, "retries per fetch for transient failures")
	fs.Int("throttle-ms", 3000, "minimum spacing between requests to one domain")
	fs.Int("timeout-ms", 15000, "per-request timeout")
	fs.Int("workers", 5, "targets processed in parallel")
	fs.Int("deadline-ms", 120000, "time budget per target")
	fs.Bool("smtp-verify", false, "verify guessed addresses over SMTP")
	fs.Bool("whois", true, "query registration data when pages yield no email")
	fs.Int("max-pages", 8, "candidate pages fetched per target")
	fs.Bool("respect-robots", true, "skip paths disallowed by robots.txt")
	fs.Bool("sitemap", true, "use sitemap entries as page hints")
	fs.String("fingerprint", "chrome", "TLS fingerprint: chrome, firefox, safari, random, go")
	fs.String("proxy-file", "", "file with one proxy URL per line")
	fs.StringSlice("user-agents", nil, "user-agent strings to rotate through")
	fs.String("log-level", "info", "debug, info, warn or error")
	fs.String("log-format", "text", "text or json")
	fs.Int("metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
	fs.String("storage", "json", "storage backend: json, csv, sqlite, postgres")
	fs.String("dsn", "contacts.ndjson", "storage path or connection string")
	fs.String("smtp-helo", "", "HELO host for SMTP verification")
	fs.String("smtp-from", "", "MAIL FROM address for SMTP verification")
	fs.String("dns-server", "", "DNS server for MX lookups (host:port)")
	fs.Int("priority-extra", 1, "extra fallback techniques for priority targets")
	fs.Int("fallback-technique", 1, "fallback techniques for normal targets")
}

// BindFlags binds every flag registered by AddFlags that is present on fs.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads path (if non-empty) into v and decodes the merged result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]int{
		"workerPoolSize":      c.WorkerPoolSize,
		"requestTimeoutMs":    c.RequestTimeoutMs,
		"perTargetDeadlineMs": c.PerTargetDeadlineMs,
		"maxPagesPerTarget":   c.MaxPagesPerTarget,
		"backoffBaseMs":       c.BackoffBaseMs,
		"backoffMaxMs":        c.BackoffMaxMs,
		"smtpTimeoutMs":       c.SMTPTimeoutMs,
		"smtpConcurrency":     c.SMTPConcurrency,
		"whoisTimeoutMs":      c.WhoisTimeoutMs,
		"fallbackTechniques":  c.FallbackTechniques,
	}
	for _, k := range sortedKeys(positive) {
		if positive[k] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", k, positive[k]))
		}
	}
	nonNegative := map[string]int{
		"maxRetries":              c.MaxRetries,
		"throttleIntervalMs":      c.ThrottleIntervalMs,
		"metricsPort":             c.MetricsPort,
		"priorityExtraTechniques": c.PriorityExtraTechniques,
	}
	for _, k := range sortedKeys(nonNegative) {
		if nonNegative[k] < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", k, nonNegative[k]))
		}
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 5 {
		errs = append(errs, fmt.Errorf("maxRedirects must be between 0 and 5, got %d", c.MaxRedirects))
	}
	if c.BackoffMaxMs < c.BackoffBaseMs {
		errs = append(errs, fmt.Errorf("backoffMaxMs %d is below backoffBaseMs %d", c.BackoffMaxMs, c.BackoffBaseMs))
	}
	if c.ThrottleJitter < 0 || c.ThrottleJitter > 1 {
		errs = append(errs, fmt.Errorf("throttleJitter must be within [0,1], got %v", c.ThrottleJitter))
	}
	if _, err := fingerprint.ParseProfile(c.Fingerprint); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logFormat must be text or json, got %q", c.LogFormat))
	}
	switch c.Storage.Backend {
	case "json", "csv", "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q is not one of json, csv, sqlite, postgres", c.Storage.Backend))
	}
	if c.Storage.DSN == "" {
		errs = append(errs, errors.New("storage.dsn is empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("logLevel: %w", err)
	}
	return l, nil
}

func (c *Config) ThrottleInterval() time.Duration { return ms(c.ThrottleIntervalMs) }
func (c *Config) RequestTimeout() time.Duration   { return ms(c.RequestTimeoutMs) }
func (c *Config) TargetDeadline() time.Duration   { return ms(c.PerTargetDeadlineMs) }
func (c *Config) BackoffBase() time.Duration      { return ms(c.BackoffBaseMs) }
func (c *Config) BackoffMax() time.Duration       { return ms(c.BackoffMaxMs) }
func (c *Config) SMTPTimeout() time.Duration      { return ms(c.SMTPTimeoutMs) }
func (c *Config) WhoisTimeout() time.Duration     { return ms(c.WhoisTimeoutMs) }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
