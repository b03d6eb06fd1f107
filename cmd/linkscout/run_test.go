package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/FranksOps/linkscout/internal/storage"
	"github.com/FranksOps/linkscout/internal/storage/jsonbackend"
)

func TestRunCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>
<a href="mailto:hello@acme.io">Email us</a>
<a href="https://twitter.com/acmehq">Twitter</a>
</body></html>`)
	}))
	defer srv.Close()

	dsn := filepath.Join(t.TempDir(), "contacts.ndjson")
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{
		"run",
		"--throttle-ms", "0",
		"--fingerprint", "go",
		"--whois=false",
		"--respect-robots=false",
		"--sitemap=false",
		"--storage", "json",
		"--dsn", dsn,
		"--report", "json",
		srv.URL + "/",
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("run: %v", err)
	}

	var summary struct {
		Total       int
		WithContact int
		Failed      int
	}
	if err := json.Unmarshal(out.Bytes(), &summary); err != nil {
		t.Fatalf("report is not JSON: %v\n%s", err, out.String())
	}
	if summary.Total != 1 || summary.WithContact != 1 || summary.Failed != 0 {
		t.Errorf("summary = %+v", summary)
	}

	backend, err := jsonbackend.New(dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer backend.Close()
	recs, err := backend.Query(context.Background(), storage.Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Fatalf("stored %d records", len(recs))
	}
	rec := recs[0]
	if rec.State != "DONE" || rec.RunID == "" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Contact.Emails) != 1 || rec.Contact.Emails[0] != "hello@acme.io" {
		t.Errorf("emails = %v", rec.Contact.Emails)
	}
}
