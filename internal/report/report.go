// Package report summarises stored contact records as text, JSON or HTML.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"sort"
	texttemplate "text/template"
	"time"

	"github.com/FranksOps/linkscout/internal/storage"
)

// Summary contains aggregated metrics about a discovery run or a stored
// record set.
type Summary struct {
	Total int
	// WithContact counts records with at least one channel.
	WithContact int
	// Empty counts finished records where nothing was found.
	Empty   int
	Failed  int
	ByState map[string]int
	// Techniques counts records each technique contributed to.
	Techniques     map[string]int
	Emails         int
	SocialProfiles int
	ContactForms   int
	PhoneNumbers   int
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
	Failures       []Failure
}

// Failure is one failed record and its reason.
type Failure struct {
	ID     string
	Domain string
	Reason string
}

// HitRate is the share of records with any contact channel.
func (s Summary) HitRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.WithContact) / float64(s.Total)
}

// GenerateSummary aggregates records into a Summary.
func GenerateSummary(records []*storage.Record) Summary {
	s := Summary{
		ByState:    make(map[string]int),
		Techniques: make(map[string]int),
	}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].UpdatedAt
	s.EndTime = records[0].UpdatedAt

	for _, r := range records {
		s.Total++
		s.ByState[r.State]++

		ci := r.Contact
		if ci.HasContact() {
			// A failed record can still carry a partial result.
			s.WithContact++
		}
		if r.State == "FAILED" {
			s.Failed++
			reason := ""
			if ci != nil {
				reason = ci.ExtractionDetails.FailureReason
			}
			s.Failures = append(s.Failures, Failure{ID: r.ID, Domain: r.Domain, Reason: reason})
		} else if !ci.HasContact() {
			s.Empty++
		}

		if ci != nil {
			s.Emails += len(ci.Emails)
			s.SocialProfiles += len(ci.SocialProfiles)
			s.ContactForms += len(ci.ContactForms)
			s.PhoneNumbers += len(ci.PhoneNumbers)
			seen := make(map[string]bool)
			for _, p := range ci.Provenance {
				if !seen[p.Technique] {
					seen[p.Technique] = true
					s.Techniques[p.Technique]++
				}
			}
		}

		if r.UpdatedAt.Before(s.StartTime) {
			s.StartTime = r.UpdatedAt
		}
		if r.UpdatedAt.After(s.EndTime) {
			s.EndTime = r.UpdatedAt
		}
	}

	sort.Slice(s.Failures, func(i, j int) bool { return s.Failures[i].ID < s.Failures[j].ID })
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return nil
}

const textTmpl = `Linkscout Summary
-----------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Targets:       {{.Total}}
With contact:  {{.WithContact}} ({{printf "%.1f" (pct .HitRate)}}%)
Nothing found: {{.Empty}}
Failed:        {{.Failed}}

Found:
  emails:   {{.Emails}}
  social:   {{.SocialProfiles}}
  forms:    {{.ContactForms}}
  phones:   {{.PhoneNumbers}}

Techniques:
{{- range $name, $count := .Techniques}}
  {{$name}}: {{$count}}
{{- else}}
  None
{{- end}}
{{- if .Failures}}

Failures:
{{- range .Failures}}
  {{.ID}} {{.Domain}}: {{.Reason}}
{{- end}}
{{- end}}
`

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	t, err := texttemplate.New("textReport").Funcs(texttemplate.FuncMap{"pct": pct}).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("parse text template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render text report: %w", err)
	}

	return nil
}

const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>Linkscout Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>Linkscout Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Targets</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>With Contact</div>
    <div class="stat-val" style="color: green;">{{.WithContact}}</div>
  </div>
  <div class="stat-card">
    <div>Nothing Found</div>
    <div class="stat-val">{{.Empty}}</div>
  </div>
  <div class="stat-card">
    <div>Failed</div>
    <div class="stat-val" style="color: {{if gt .Failed 0}}red{{else}}green{{end}};">{{.Failed}}</div>
  </div>

  <h3>Techniques</h3>
  <table>
    <tr><th>Technique</th><th>Records</th></tr>
    {{- range $name, $count := .Techniques}}
    <tr><td>{{$name}}</td><td>{{$count}}</td></tr>
    {{- else}}
    <tr><td colspan="2">None</td></tr>
    {{- end}}
  </table>

  <h3>Failures</h3>
  <table>
    <tr><th>ID</th><th>Domain</th><th>Reason</th></tr>
    {{- range .Failures}}
    <tr><td>{{.ID}}</td><td>{{.Domain}}</td><td>{{.Reason}}</td></tr>
    {{- else}}
    <tr><td colspan="3">None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`

// WriteHTML writes a basic HTML report to the provided writer. Values are
// escaped since failure reasons carry remote text.
func WriteHTML(w io.Writer, summary Summary) error {
	t, err := template.New("htmlReport").Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("parse html template: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}

	return nil
}

func pct(f float64) float64 { return f * 100 }
