package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/linkscout/internal/contact"
	"github.com/FranksOps/linkscout/internal/storage"
)

func info(at time.Time, signals ...contact.Signal) *contact.ContactInfo {
	return contact.Merge(nil, signals, at)
}

func TestGenerateSummary(t *testing.T) {
	now := time.Date(2025, 4, 2, 10, 0, 0, 0, time.UTC)

	failed := info(now.Add(2*time.Second), contact.Signal{Kind: contact.KindPhone, Value: "+14155550100", Technique: contact.TechniquePhone, Tier: contact.TierPattern})
	failed.ExtractionDetails.FailureReason = "target deadline exceeded"

	records := []*storage.Record{
		{
			ID:        "a",
			Domain:    "acme.io",
			State:     "DONE",
			UpdatedAt: now,
			Contact: info(now,
				contact.Signal{Kind: contact.KindEmail, Value: "hello@acme.io", Technique: contact.TechniqueEmailPattern, Tier: contact.TierPattern},
				contact.Signal{Kind: contact.KindForm, Value: "https://acme.io/contact", Technique: contact.TechniqueContactForm, Tier: contact.TierStructural},
			),
		},
		{
			ID:        "b",
			Domain:    "quiet.io",
			State:     "DONE",
			UpdatedAt: now.Add(time.Second),
			Contact:   info(now.Add(time.Second)),
		},
		{
			ID:        "c",
			Domain:    "slow.io",
			State:     "FAILED",
			UpdatedAt: now.Add(2 * time.Second),
			Contact:   failed,
		},
	}

	summary := GenerateSummary(records)

	if summary.Total != 3 {
		t.Errorf("expected 3 records, got %d", summary.Total)
	}
	if summary.WithContact != 2 {
		t.Errorf("expected 2 with contact, got %d", summary.WithContact)
	}
	if summary.Empty != 1 {
		t.Errorf("expected 1 empty, got %d", summary.Empty)
	}
	if summary.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", summary.Failed)
	}
	if summary.ByState["DONE"] != 2 {
		t.Errorf("expected 2 DONE, got %d", summary.ByState["DONE"])
	}
	if summary.Techniques[contact.TechniqueEmailPattern] != 1 || summary.Techniques[contact.TechniquePhone] != 1 {
		t.Errorf("techniques = %v", summary.Techniques)
	}
	if summary.Emails != 1 || summary.ContactForms != 1 || summary.PhoneNumbers != 1 {
		t.Errorf("counts = %+v", summary)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Reason != "target deadline exceeded" {
		t.Errorf("failures = %+v", summary.Failures)
	}
	if summary.Duration != 2*time.Second {
		t.Errorf("expected 2s duration, got %v", summary.Duration)
	}
}

func TestGenerateSummaryEmpty(t *testing.T) {
	s := GenerateSummary(nil)
	if s.Total != 0 || s.HitRate() != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestWriteJSON(t *testing.T) {
	summary := Summary{
		Total: 5,
	}
	var buf bytes.Buffer
	err := WriteJSON(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.Contains(buf.String(), `"Total": 5`) {
		t.Errorf("expected JSON to contain Total: 5")
	}
}

func TestWriteText(t *testing.T) {
	summary := Summary{
		Total:       4,
		WithContact: 1,
		Techniques: map[string]int{
			"email_pattern": 1,
		},
	}
	var buf bytes.Buffer
	err := WriteText(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "With contact:  1 (25.0%)") {
		t.Errorf("expected hit rate line, got:\n%s", out)
	}
	if !strings.Contains(out, "email_pattern: 1") {
		t.Errorf("expected text to contain email_pattern: 1")
	}
}

func TestWriteHTML(t *testing.T) {
	summary := Summary{
		Total:  10,
		Failed: 1,
		Failures: []Failure{
			{ID: "x", Domain: "evil.io", Reason: "<script>"},
		},
	}
	var buf bytes.Buffer
	err := WriteHTML(&buf, summary)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "<title>Linkscout Report</title>") {
		t.Errorf("expected HTML title")
	}
	if strings.Contains(out, "<script>") || !strings.Contains(out, "&lt;script&gt;") {
		t.Errorf("expected failure reason to be escaped")
	}
}
