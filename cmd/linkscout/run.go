package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/FranksOps/linkscout/internal/engine"
	"github.com/FranksOps/linkscout/internal/metrics"
	"github.com/FranksOps/linkscout/internal/report"
	"github.com/FranksOps/linkscout/internal/storage"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	runTargetsFile string
	runReport      string
	runReportOut   string
)

var runCmd = &cobra.Command{
	Use:   "run [site...]",
	Short: "Discover contacts for the given sites or a targets file",
	Long: `Runs contact discovery for every target and stores one merged record per target id.

Targets come from positional arguments (URLs or bare domains) or from --targets,
a CSV file with a header (id, domain, url, priority) or an NDJSON file with one
{"id","domain","url","isPriority"} object per line. Records already in storage
are merged with, never replaced.`,
	RunE: runDiscovery,
}

func init() {
	runCmd.Flags().StringVarP(&runTargetsFile, "targets", "f", "", "CSV or NDJSON file of targets")
	runCmd.Flags().StringVar(&runReport, "report", "text", "summary format: text, json, html or none")
	runCmd.Flags().StringVar(&runReportOut, "report-out", "", "write the summary to this file instead of stdout")
	rootCmd.AddCommand(runCmd)
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	if err := checkReportFormat(runReport); err != nil {
		return err
	}

	var targets []engine.Target
	var err error
	switch {
	case runTargetsFile != "":
		targets, err = loadTargets(runTargetsFile)
	case len(args) > 0:
		targets, err = targetsFromArgs(args)
	default:
		return errors.New("no targets: pass sites as arguments or use --targets")
	}
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return errors.New("targets file is empty")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer backend.Close()

	for i := range targets {
		rec, err := backend.Get(ctx, targets[i].ID)
		switch {
		case err == nil:
			targets[i].Existing = rec.Contact
		case !errors.Is(err, storage.ErrNotFound):
			return fmt.Errorf("load %s: %w", targets[i].ID, err)
		}
	}

	if cfg.MetricsPort > 0 {
		srv, err := metrics.Start(fmt.Sprintf(":%d", cfg.MetricsPort), logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Stop(shutdownCtx)
		}()
	}

	runID := uuid.NewString()
	var saveFailures atomic.Int64
	save := func(res engine.Result) {
		rec := recordOf(res, runID)
		// Storage outlives a cancelled run so finished targets are kept.
		if err := backend.Save(context.WithoutCancel(ctx), rec); err != nil {
			saveFailures.Add(1)
			logger.Error("save record", "target", rec.ID, "err", err)
			return
		}
		logger.Info("target finished", "target", rec.ID, "domain", rec.Domain, "state", rec.State,
			"emails", len(rec.Contact.Emails), "duration", res.Duration)
	}

	eng, err := newEngine(cfg, save, logger)
	if err != nil {
		return err
	}

	logger.Info("run started", "run", runID, "targets", len(targets), "workers", cfg.WorkerPoolSize)
	results := eng.Run(ctx, targets)

	records := make([]*storage.Record, 0, len(results))
	for _, res := range results {
		records = append(records, recordOf(res, runID))
	}
	if err := writeReport(cmd.OutOrStdout(), runReport, runReportOut, report.GenerateSummary(records)); err != nil {
		return err
	}

	if n := saveFailures.Load(); n > 0 {
		return fmt.Errorf("%d of %d records could not be saved", n, len(results))
	}
	return ctx.Err()
}

func recordOf(res engine.Result, runID string) *storage.Record {
	updated := res.Record.ExtractionDetails.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	return &storage.Record{
		ID:        res.Target.ID,
		Domain:    res.Target.Domain,
		URL:       res.Target.URL,
		State:     string(res.State),
		Contact:   res.Record,
		RunID:     runID,
		UpdatedAt: updated,
	}
}

func checkReportFormat(format string) error {
	switch format {
	case "text", "json", "html", "none":
		return nil
	}
	return fmt.Errorf("unknown report format %q", format)
}

func writeReport(stdout io.Writer, format, path string, s report.Summary) error {
	if format == "none" {
		return nil
	}
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		defer f.Close()
		w = f
	}
	switch format {
	case "text":
		return report.WriteText(w, s)
	case "json":
		return report.WriteJSON(w, s)
	case "html":
		return report.WriteHTML(w, s)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}
