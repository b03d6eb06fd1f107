package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/FranksOps/linkscout/internal/engine"
	"github.com/FranksOps/linkscout/pkg/domainutil"
)

// targetLine is one NDJSON input line.
type targetLine struct {
	ID         string `json:"id"`
	Domain     string `json:"domain"`
	URL        string `json:"url"`
	IsPriority bool   `json:"isPriority"`
}

// loadTargets reads targets from path. Files ending in .csv need a header
// with at least a domain or url column (id and priority are optional); any
// other file is NDJSON. Missing ids default to the root domain so repeated
// runs update the same record.
func loadTargets(path string) ([]engine.Target, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets: %w", err)
	}
	defer f.Close()

	var lines []targetLine
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		lines, err = readCSVTargets(f)
	} else {
		lines, err = readNDJSONTargets(f)
	}
	if err != nil {
		return nil, fmt.Errorf("read targets %s: %w", path, err)
	}
	return toTargets(lines)
}

// targetsFromArgs treats each argument as a site URL or bare domain.
func targetsFromArgs(args []string) ([]engine.Target, error) {
	lines := make([]targetLine, 0, len(args))
	for _, a := range args {
		if strings.Contains(a, "://") {
			lines = append(lines, targetLine{URL: a})
		} else {
			lines = append(lines, targetLine{Domain: a})
		}
	}
	return toTargets(lines)
}

func readNDJSONTargets(r io.Reader) ([]targetLine, error) {
	var out []targetLine
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var t targetLine
		if err := json.Unmarshal([]byte(line), &t); err != nil {
			return nil, fmt.Errorf("line %d: %w", n, err)
		}
		out = append(out, t)
	}
	return out, sc.Err()
}

func readCSVTargets(r io.Reader) ([]targetLine, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	col := make(map[string]int)
	for i, h := range header {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	_, hasDomain := col["domain"]
	_, hasURL := col["url"]
	if !hasDomain && !hasURL {
		return nil, errors.New("header needs a domain or url column")
	}
	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var out []targetLine
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		priority, _ := strconv.ParseBool(field(row, "priority"))
		out = append(out, targetLine{
			ID:         field(row, "id"),
			Domain:     field(row, "domain"),
			URL:        field(row, "url"),
			IsPriority: priority,
		})
	}
}

func toTargets(lines []targetLine) ([]engine.Target, error) {
	out := make([]engine.Target, 0, len(lines))
	seen := make(map[string]bool)
	for i, l := range lines {
		host := strings.ToLower(strings.TrimSpace(l.Domain))
		base := domainutil.BaseURL(host, l.URL)
		domain := domainutil.RootDomain(host)
		if domain == "" {
			domain = domainutil.RootDomainOf(base)
		}
		if domain == "" {
			return nil, fmt.Errorf("target %d: no domain or url", i+1)
		}
		id := l.ID
		if id == "" {
			id = domain
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, engine.Target{
			ID:         id,
			Domain:     domain,
			URL:        base,
			IsPriority: l.IsPriority,
		})
	}
	return out, nil
}
