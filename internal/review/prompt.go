package review

import (
	"fmt"
	"strings"

	"github.com/dshills/autotriage/internal/issue"
	"github.com/dshills/autotriage/internal/lsp"
)

// systemPrompt steers the model toward evidence-bound triage.
const systemPrompt = `You are a triage assistant for a compiler/language-tooling repository.
You are given a GitHub issue and the findings a real language server produced
for the code in that issue. Ground every claim in those findings. Assess:
whether the reported behavior reproduces, the likely root cause area, whether
the issue is a bug, a question, or working-as-intended, and what a maintainer
should look at first. Be concise. Say when the evidence is inconclusive.`

// PromptBuilder accumulates the issue and the harness findings, then renders
// one assessment request.
type PromptBuilder struct {
	issue    *issue.Issue
	sections []string
}

// NewPromptBuilder returns an empty builder.
func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// SetIssue records the issue under triage.
func (b *PromptBuilder) SetIssue(is *issue.Issue) *PromptBuilder {
	b.issue = is
	return b
}

// AddSnippet records one extracted code block and the scratch file it was
// written to.
func (b *PromptBuilder) AddSnippet(file, language, code string) *PromptBuilder {
	if language == "" {
		language = "ts"
	}
	b.sections = append(b.sections, fmt.Sprintf("Snippet %s:\n```%s\n%s\n```", file, language, code))
	return b
}

// AddDiagnostics records the server's diagnostics for one file.
func (b *PromptBuilder) AddDiagnostics(file string, diags []lsp.Diagnostic) *PromptBuilder {
	if len(diags) == 0 {
		b.sections = append(b.sections, fmt.Sprintf("Diagnostics for %s: none reported.", file))
		return b
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Diagnostics for %s:\n", file)
	for _, d := range diags {
		fmt.Fprintf(&sb, "- [%s] line %d, char %d: %s\n",
			severityName(d.Severity), d.Range.Start.Line, d.Range.Start.Character, d.Message)
	}
	b.sections = append(b.sections, strings.TrimRight(sb.String(), "\n"))
	return b
}

// AddHover records a hover result for a position of interest.
func (b *PromptBuilder) AddHover(file string, pos lsp.Position, text string) *PromptBuilder {
	b.sections = append(b.sections, fmt.Sprintf(
		"Hover at %s line %d, char %d:\n%s", file, pos.Line, pos.Character, text))
	return b
}

// AddDefinitions records where the server resolved a symbol to.
func (b *PromptBuilder) AddDefinitions(file string, pos lsp.Position, locs []lsp.Location) *PromptBuilder {
	if len(locs) == 0 {
		b.sections = append(b.sections, fmt.Sprintf(
			"Definition at %s line %d, char %d: not resolved.", file, pos.Line, pos.Character))
		return b
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Definition at %s line %d, char %d resolves to:\n", file, pos.Line, pos.Character)
	for _, loc := range locs {
		fmt.Fprintf(&sb, "- %s line %d\n", lsp.URIToFilePath(loc.URI), loc.Range.Start.Line)
	}
	b.sections = append(b.sections, strings.TrimRight(sb.String(), "\n"))
	return b
}

// AddNote records freeform context, such as a harness failure the model
// should weigh.
func (b *PromptBuilder) AddNote(note string) *PromptBuilder {
	b.sections = append(b.sections, "Note: "+note)
	return b
}

// Build renders the request.
func (b *PromptBuilder) Build(maxTokens int) Request {
	var sb strings.Builder

	if b.issue != nil {
		fmt.Fprintf(&sb, "# Issue %s: %s\n\n", b.issue.Ref, b.issue.Title)
		fmt.Fprintf(&sb, "State: %s. Reported by %s.", b.issue.State, b.issue.Author)
		if len(b.issue.Labels) > 0 {
			fmt.Fprintf(&sb, " Labels: %s.", strings.Join(b.issue.Labels, ", "))
		}
		sb.WriteString("\n\n")
		sb.WriteString(strings.TrimSpace(b.issue.Body))
		sb.WriteString("\n")
		for _, c := range b.issue.Comments {
			fmt.Fprintf(&sb, "\nComment by %s:\n%s\n", c.Author, strings.TrimSpace(c.Body))
		}
	}

	if len(b.sections) > 0 {
		sb.WriteString("\n# Language server findings\n")
		for _, section := range b.sections {
			sb.WriteString("\n" + section + "\n")
		}
	}

	return Request{
		System:    systemPrompt,
		Prompt:    sb.String(),
		MaxTokens: maxTokens,
	}
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
