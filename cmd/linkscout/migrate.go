package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/storage"
	"github.com/FranksOps/linkscout/pkg/domainutil"
	"github.com/spf13/cobra"
)

var migrateDryRun bool

var migrateCmd = &cobra.Command{
	Use:   "migrate <file.ndjson>",
	Short: "Import stored contact documents of any older shape",
	Long: `Reads one opportunity document per line, {"id","domain","url","contactInfo"},
converts contactInfo from any known older field layout (email, form, contactForm,
social, ...) into the canonical record and saves it to the configured backend.
Lines that cannot be converted are reported and skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "convert and count without saving")
	rootCmd.AddCommand(migrateCmd)
}

// legacyDoc is one line of a migration file.
type legacyDoc struct {
	ID          string          `json:"id"`
	Domain      string          `json:"domain"`
	URL         string          `json:"url"`
	ContactInfo json.RawMessage `json:"contactInfo"`
}

// migrateStats counts outcomes of a migration.
type migrateStats struct {
	Read, Saved, Skipped int
}

func runMigrate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	var backend storage.Backend
	if !migrateDryRun {
		backend, err = openBackend(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		defer backend.Close()
	}

	stats, err := migrate(cmd.Context(), f, backend, slog.Default())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "read %d, saved %d, skipped %d\n", stats.Read, stats.Saved, stats.Skipped)
	return nil
}

// migrate converts every line of r. A nil backend converts without saving.
func migrate(ctx context.Context, r io.Reader, backend storage.Backend, logger *slog.Logger) (migrateStats, error) {
	var stats migrateStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16<<20)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" {
			continue
		}
		stats.Read++

		rec, err := convertLegacy([]byte(text))
		if err != nil {
			stats.Skipped++
			logger.Warn("skip document", "line", line, "err", err)
			continue
		}
		if backend == nil {
			stats.Saved++
			continue
		}
		if err := backend.Save(ctx, rec); err != nil {
			return stats, fmt.Errorf("line %d: save %s: %w", line, rec.ID, err)
		}
		stats.Saved++
	}
	if err := sc.Err(); err != nil {
		return stats, fmt.Errorf("read: %w", err)
	}
	return stats, nil
}

func convertLegacy(data []byte) (*storage.Record, error) {
	var doc legacyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if doc.ID == "" {
		return nil, errors.New("missing id")
	}
	if len(doc.ContactInfo) == 0 || string(doc.ContactInfo) == "null" {
		return nil, errors.New("missing contactInfo")
	}
	ci, err := contact.NormalizeLegacy(doc.ContactInfo)
	if err != nil {
		return nil, err
	}

	domain := domainutil.RootDomain(doc.Domain)
	if domain == "" {
		domain = domainutil.RootDomainOf(doc.URL)
	}
	updated := ci.ExtractionDetails.LastUpdated
	if updated.IsZero() {
		updated = time.Now().UTC()
	}
	state := "DONE"
	if ci.ExtractionDetails.FailureReason != "" {
		state = "FAILED"
	}
	return &storage.Record{
		ID:        doc.ID,
		Domain:    domain,
		URL:       doc.URL,
		State:     state,
		Contact:   ci,
		UpdatedAt: updated,
	}, nil
}
