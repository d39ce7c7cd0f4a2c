// Package report renders scenario run results for terminals, machines and
// browsers.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kuitang/modulista-e2e/internal/scenario"
)

// Format names an output format accepted by Write.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ParseFormat validates a --format value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatTable, FormatJSON:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, table or json)", s)
	}
}

// Summary holds run totals.
type Summary struct {
	Total    int
	Passed   int
	Failed   int
	Duration time.Duration
}

// Summarize counts results.
func Summarize(results []scenario.ExecutionResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		if r.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
		s.Duration += r.Duration
	}
	return s
}

// AllPassed reports whether every result passed. An empty run passes.
func AllPassed(results []scenario.ExecutionResult) bool {
	return Summarize(results).Failed == 0
}

// Render produces the report in the requested format.
func Render(format Format, runID string, results []scenario.ExecutionResult) (string, error) {
	switch format {
	case FormatTable:
		return RenderTable(results), nil
	case FormatJSON:
		data, err := RenderJSON(runID, results)
		if err != nil {
			return "", err
		}
		return string(data) + "\n", nil
	default:
		return RenderText(results), nil
	}
}

// RenderText renders one PASS/FAIL line per scenario followed by totals.
func RenderText(results []scenario.ExecutionResult) string {
	var b strings.Builder
	for _, r := range results {
		if r.Passed() {
			fmt.Fprintf(&b, "PASS  %s\n", r.Scenario)
		} else {
			fmt.Fprintf(&b, "FAIL  %s: %s: %s\n", r.Scenario, r.Code, r.Reason)
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "      warning: %s\n", w)
		}
	}

	s := Summarize(results)
	fmt.Fprintf(&b, "\n%d of %d scenarios passed.", s.Passed, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(&b, " %d failed.", s.Failed)
	}
	b.WriteString("\n")
	return b.String()
}

// RenderTable renders results as an ASCII table with a totals footer.
func RenderTable(results []scenario.ExecutionResult) string {
	t := table.NewWriter()
	t.SetTitle("Modulista scenarios")
	t.AppendHeader(table.Row{"Scenario", "Duration", "Step", "Status", "Reason"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Step", Align: text.AlignRight},
		{Name: "Reason", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range results {
		step := "-"
		reason := ""
		status := "PASS"
		if !r.Passed() {
			status = "FAIL"
			reason = string(r.Code) + ": " + r.Reason
			if r.FailedStep > 0 {
				step = fmt.Sprintf("%d", r.FailedStep)
			}
		}
		t.AppendRow(table.Row{r.Scenario, formatDuration(r.Duration), step, status, reason})
	}

	s := Summarize(results)
	overall := "PASS"
	if s.Failed > 0 {
		overall = "FAIL"
	}
	t.AppendFooter(table.Row{
		fmt.Sprintf("TOTAL %d/%d", s.Passed, s.Total),
		formatDuration(s.Duration),
		"",
		overall,
		"",
	})
	t.SetStyle(table.StyleLight)
	return t.Render() + "\n"
}

type jsonReport struct {
	RunID     string       `json:"run_id"`
	Total     int          `json:"total"`
	Passed    int          `json:"passed"`
	Failed    int          `json:"failed"`
	Scenarios []jsonResult `json:"scenarios"`
}

type jsonResult struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Code        string   `json:"code,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	FailedStep  int      `json:"failed_step,omitempty"`
	Artifacts   []string `json:"artifacts"`
	Dialogs     []string `json:"dialogs"`
	Warnings    []string `json:"warnings,omitempty"`
	StartedAt   string   `json:"started_at"`
	DurationMS  int64    `json:"duration_ms"`
}

// RenderJSON renders a stable machine-readable report.
func RenderJSON(runID string, results []scenario.ExecutionResult) ([]byte, error) {
	s := Summarize(results)
	out := jsonReport{
		RunID:     runID,
		Total:     s.Total,
		Passed:    s.Passed,
		Failed:    s.Failed,
		Scenarios: make([]jsonResult, 0, len(results)),
	}
	for _, r := range results {
		jr := jsonResult{
			Name:        r.Scenario,
			Description: r.Description,
			Status:      string(r.Status),
			Code:        string(r.Code),
			Reason:      r.Reason,
			FailedStep:  r.FailedStep,
			Artifacts:   nonNil(r.Artifacts),
			Dialogs:     nonNil(r.Dialogs),
			Warnings:    r.Warnings,
			DurationMS:  r.Duration.Milliseconds(),
		}
		if !r.StartedAt.IsZero() {
			jr.StartedAt = r.StartedAt.UTC().Format(time.RFC3339)
		}
		out.Scenarios = append(out.Scenarios, jr)
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}
	return data, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(10 * time.Millisecond).String()
}
