package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"

	"github.com/kuitang/modulista-e2e/internal/scenario"
)

// Markdown renders the run summary as a Markdown document.
func Markdown(runID string, results []scenario.ExecutionResult) []byte {
	var b bytes.Buffer
	s := Summarize(results)

	fmt.Fprintf(&b, "# Modulista scenario run\n\n")
	fmt.Fprintf(&b, "Run `%s`: **%d of %d passed**", mdCode(runID), s.Passed, s.Total)
	if s.Failed > 0 {
		fmt.Fprintf(&b, ", %d failed", s.Failed)
	}
	b.WriteString(".\n\n")

	b.WriteString("| Scenario | Status | Duration | Reason |\n")
	b.WriteString("|---|---|---|---|\n")
	for _, r := range results {
		status := "PASS"
		reason := ""
		if !r.Passed() {
			status = "**FAIL**"
			reason = fmt.Sprintf("`%s` step %d: %s", r.Code, r.FailedStep, r.Reason)
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			mdCell(r.Scenario), status, formatDuration(r.Duration), mdCell(reason))
	}

	for _, r := range results {
		fmt.Fprintf(&b, "\n## %s\n\n", mdCell(r.Scenario))
		if r.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", mdCell(r.Description))
		}
		if len(r.Dialogs) > 0 {
			b.WriteString("Dialogs:\n\n")
			for _, d := range r.Dialogs {
				fmt.Fprintf(&b, "- %s\n", mdCell(d))
			}
			b.WriteString("\n")
		}
		if len(r.Artifacts) > 0 {
			b.WriteString("Artifacts:\n\n")
			for _, a := range r.Artifacts {
				fmt.Fprintf(&b, "- `%s`\n", mdCode(a))
			}
			b.WriteString("\n")
		}
		for _, w := range r.Warnings {
			fmt.Fprintf(&b, "> warning: %s\n\n", mdCell(w))
		}
	}
	return b.Bytes()
}

func mdCell(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", `\|`)
}

func mdCode(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

// renderMarkdown converts markdown to sanitized HTML.
func renderMarkdown(md []byte) []byte {
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock
	p := parser.NewWithExtensions(extensions)
	doc := p.Parse(md)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)

	// Scenario names and dialog text come from the page and user files.
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("pre", "code")
	policy.AllowAttrs("class").OnElements("code", "pre")
	return policy.SanitizeBytes(out)
}

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 960px; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: .4rem .6rem; text-align: left; }
code { background: #f4f4f4; padding: 0 .2rem; }
</style>
</head>
<body>
{{.Content}}
</body>
</html>
`))

// RenderHTML renders the Markdown summary as a standalone HTML page.
func RenderHTML(runID string, results []scenario.ExecutionResult) ([]byte, error) {
	var buf bytes.Buffer
	data := struct {
		Title   string
		Content template.HTML
	}{
		Title:   "Modulista scenario run " + runID,
		Content: template.HTML(renderMarkdown(Markdown(runID, results))),
	}
	if err := pageTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render html report: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteHTML writes the HTML report to path, creating parent directories.
func WriteHTML(path, runID string, results []scenario.ExecutionResult) error {
	page, err := RenderHTML(runID, results)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	if err := os.WriteFile(path, page, 0o644); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	return nil
}
