// Package metrics exposes Prometheus instruments for fetches, extraction
// techniques and per-target outcomes.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscout_fetch_requests_total",
			Help: "HTTP fetch attempts by root domain and outcome",
		},
		[]string{"domain", "outcome"},
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "linkscout_fetch_duration_seconds",
			Help:    "Duration of single fetch attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"domain"},
	)

	FetchBytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscout_fetch_bytes_total",
			Help: "Total bytes downloaded",
		},
		[]string{"domain"},
	)

	ThrottleWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkscout_throttle_wait_seconds",
			Help:    "Time spent waiting on the per-domain politeness gate",
			Buckets: []float64{0, 0.5, 1, 2, 3, 5, 10},
		},
	)

	ProxyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscout_proxy_failures_total",
			Help: "Requests that failed through a proxy",
		},
		[]string{"proxy_url"},
	)

	TechniqueRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscout_technique_runs_total",
			Help: "Extractor invocations by technique and outcome (hit, empty, error)",
		},
		[]string{"technique", "outcome"},
	)

	SMTPVerdicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscout_smtp_verdicts_total",
			Help: "SMTP RCPT verification verdicts",
		},
		[]string{"verdict"},
	)

	TargetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkscout_targets_total",
			Help: "Targets processed by terminal state",
		},
		[]string{"state"},
	)

	TargetDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "linkscout_target_duration_seconds",
			Help:    "Wall-clock time per target pipeline",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)
)

// RecordFetch updates the fetch instruments for one attempt.
func RecordFetch(domain, outcome string, d time.Duration, bytes int) {
	FetchRequestsTotal.WithLabelValues(domain, outcome).Inc()
	FetchDuration.WithLabelValues(domain).Observe(d.Seconds())
	if bytes > 0 {
		FetchBytesTotal.WithLabelValues(domain).Add(float64(bytes))
	}
}

// RecordTechnique counts one extractor run. err takes precedence over found.
func RecordTechnique(technique string, found int, err error) {
	outcome := "empty"
	switch {
	case err != nil:
		outcome = "error"
	case found > 0:
		outcome = "hit"
	}
	TechniqueRuns.WithLabelValues(technique, outcome).Inc()
}

// Server serves /metrics.
type Server struct {
	srv  *http.Server
	addr string
}

// Start listens on addr (":9090", "127.0.0.1:0") and serves /metrics in the
// background.
func Start(addr string, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "err", err)
		}
	}()
	logger.Info("metrics listening", "addr", ln.Addr().String())
	return &Server{srv: srv, addr: ln.Addr().String()}, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string { return s.addr }

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
