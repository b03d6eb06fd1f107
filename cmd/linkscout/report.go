package main

import (
	"fmt"
	"time"

	"github.com/FranksOps/linkscout/internal/report"
	"github.com/FranksOps/linkscout/internal/storage"
	"github.com/spf13/cobra"
)

var (
	reportFormat string
	reportOut    string
	reportDomain string
	reportState  string
	reportSince  time.Duration
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarise stored records",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := checkReportFormat(reportFormat); err != nil {
			return err
		}
		backend, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer backend.Close()

		filter := storage.Filter{Domain: reportDomain, State: reportState}
		if reportSince > 0 {
			since := time.Now().Add(-reportSince)
			filter.Since = &since
		}
		records, err := backend.Query(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("query: %w", err)
		}
		return writeReport(cmd.OutOrStdout(), reportFormat, reportOut, report.GenerateSummary(records))
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFormat, "format", "text", "text, json or html")
	reportCmd.Flags().StringVarP(&reportOut, "output", "o", "", "write to this file instead of stdout")
	reportCmd.Flags().StringVar(&reportDomain, "domain", "", "only records for this root domain")
	reportCmd.Flags().StringVar(&reportState, "state", "", "only records in this state (DONE, FAILED)")
	reportCmd.Flags().DurationVar(&reportSince, "since", 0, "only records updated within this window, e.g. 24h")
	rootCmd.AddCommand(reportCmd)
}
