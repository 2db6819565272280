// Package report renders a triage run as a markdown report on disk and a
// short colorized summary on the terminal.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"golang.org/x/term"

	"github.com/dshills/autotriage/internal/issue"
	"github.com/dshills/autotriage/internal/lsp"
)

// FileFindings collects what the language server said about one scratch file.
type FileFindings struct {
	Path        string
	Language    string
	Code        string
	Diagnostics []lsp.Diagnostic
	HoverTexts  []string
}

// Data is everything a report needs.
type Data struct {
	Issue       *issue.Issue
	Server      string
	Provider    string
	Assessment  string
	Files       []FileFindings
	Notes       []string
	GeneratedAt time.Time
}

// DiagnosticCount sums diagnostics across files.
func (d *Data) DiagnosticCount() int {
	n := 0
	for _, f := range d.Files {
		n += len(f.Diagnostics)
	}
	return n
}

const markdownTemplate = `# Triage: {{.Issue.Ref}} {{.Issue.Title}}

Generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}} | server: {{.Server}} | assessment: {{.Provider}}

State: {{.Issue.State}} | Reported by: {{.Issue.Author}}{{if .Issue.Labels}} | Labels: {{join .Issue.Labels ", "}}{{end}}

## Assessment

{{.Assessment}}
{{range .Files}}
## {{.Path}}

` + "```{{.Language}}\n{{.Code}}\n```" + `

{{if .Diagnostics}}| Severity | Line | Char | Message |
|---|---|---|---|
{{range .Diagnostics}}| {{severity .Severity}} | {{.Range.Start.Line}} | {{.Range.Start.Character}} | {{escapeCell .Message}} |
{{end}}{{else}}No diagnostics reported.
{{end}}{{range .HoverTexts}}
> {{.}}
{{end}}{{end}}{{if .Notes}}
## Notes
{{range .Notes}}
- {{.}}{{end}}
{{end}}`

var funcs = template.FuncMap{
	"join":       strings.Join,
	"severity":   severityName,
	"escapeCell": escapeCell,
}

var tmpl = template.Must(template.New("report").Funcs(funcs).Parse(markdownTemplate))

// Render writes the markdown report to w.
func Render(w io.Writer, data *Data) error {
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

// WriteFile renders the report into dir and returns the file path. The name
// is derived from the issue reference.
func WriteFile(dir string, data *Data) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}

	ref := data.Issue.Ref
	path := filepath.Join(dir, fmt.Sprintf("%s-%s-%d.md", ref.Owner, ref.Repo, ref.Number))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	defer f.Close()

	if err := Render(f, data); err != nil {
		return "", err
	}
	return path, nil
}

// ANSI sequences for the terminal summary.
const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

// ColorEnabled resolves a color mode ("auto", "always", "never") against
// whether fd is a terminal.
func ColorEnabled(mode string, fd uintptr) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	default:
		return term.IsTerminal(int(fd))
	}
}

// Summary writes a short run summary, colored when enabled.
func Summary(w io.Writer, data *Data, color bool) {
	paint := func(code, s string) string {
		if !color {
			return s
		}
		return code + s + ansiReset
	}

	fmt.Fprintf(w, "%s %s\n", paint(ansiBold, data.Issue.Ref.String()), data.Issue.Title)

	n := data.DiagnosticCount()
	switch {
	case n == 0:
		fmt.Fprintf(w, "  %s across %d file(s)\n", paint(ansiGreen, "no diagnostics"), len(data.Files))
	case n == 1:
		fmt.Fprintf(w, "  %s across %d file(s)\n", paint(ansiRed, "1 diagnostic"), len(data.Files))
	default:
		fmt.Fprintf(w, "  %s across %d file(s)\n", paint(ansiRed, fmt.Sprintf("%d diagnostics", n)), len(data.Files))
	}
	for _, note := range data.Notes {
		fmt.Fprintf(w, "  %s %s\n", paint(ansiYellow, "note:"), note)
	}
}

// escapeCell keeps a message from breaking the markdown table.
func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func severityName(s int) string {
	switch s {
	case lsp.SeverityError:
		return "error"
	case lsp.SeverityWarning:
		return "warning"
	case lsp.SeverityInformation:
		return "info"
	case lsp.SeverityHint:
		return "hint"
	default:
		return "unknown"
	}
}
