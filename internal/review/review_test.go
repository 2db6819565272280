package review

import (
	"errors"
	"strings"
	"testing"

	"github.com/dshills/autotriage/internal/config"
	"github.com/dshills/autotriage/internal/issue"
	"github.com/dshills/autotriage/internal/lsp"
)

func TestNewProvider(t *testing.T) {
	tests := []struct {
		provider string
		wantName string
	}{
		{"anthropic", "anthropic"},
		{"openai", "openai"},
		{"gemini", "gemini"},
	}
	for _, tt := range tests {
		p, err := NewProvider(config.AIConfig{Provider: tt.provider, APIKey: "test-key"})
		if err != nil {
			t.Errorf("NewProvider(%q) error = %v", tt.provider, err)
			continue
		}
		if p.Name() != tt.wantName {
			t.Errorf("NewProvider(%q).Name() = %q", tt.provider, p.Name())
		}
	}
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(config.AIConfig{Provider: "anthropic"})
	if !errors.Is(err, ErrNoAPIKey) {
		t.Errorf("NewProvider() error = %v, want ErrNoAPIKey", err)
	}
}

func TestNewProvider_Unknown(t *testing.T) {
	if _, err := NewProvider(config.AIConfig{Provider: "markov-chain", APIKey: "k"}); err == nil {
		t.Error("NewProvider() accepted an unknown provider")
	}
}

func TestPromptBuilder(t *testing.T) {
	is := &issue.Issue{
		Ref:    issue.Ref{Owner: "owner", Repo: "repo", Number: 42},
		Title:  "Hover shows wrong type",
		Body:   "The hover is wrong.",
		State:  "open",
		Author: "reporter",
		Labels: []string{"bug"},
		Comments: []issue.Comment{
			{Author: "helper", Body: "Confirmed on 5.4."},
		},
	}

	req := NewPromptBuilder().
		SetIssue(is).
		AddSnippet("snippet-1.ts", "ts", `const x: string = "hi";`).
		AddDiagnostics("snippet-1.ts", []lsp.Diagnostic{{
			Range:    lsp.Range{Start: lsp.Position{Line: 0, Character: 6}},
			Severity: lsp.SeverityError,
			Message:  "Type mismatch.",
		}}).
		AddHover("snippet-1.ts", lsp.Position{Line: 0, Character: 7}, "const x: string").
		AddDefinitions("snippet-1.ts", lsp.Position{Line: 0, Character: 7}, []lsp.Location{
			{URI: "file:///ws/snippet-1.ts", Range: lsp.Range{Start: lsp.Position{Line: 0}}},
		}).
		AddNote("completions timed out").
		Build(1024)

	if req.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", req.MaxTokens)
	}
	if req.System == "" {
		t.Error("System prompt is empty")
	}

	for _, want := range []string{
		"owner/repo#42",
		"Hover shows wrong type",
		"Labels: bug",
		"Comment by helper",
		"```ts",
		"[error] line 0, char 6: Type mismatch.",
		"Hover at snippet-1.ts line 0, char 7",
		"const x: string",
		"Definition at snippet-1.ts",
		"Note: completions timed out",
		"# Language server findings",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("prompt missing %q\n---\n%s", want, req.Prompt)
		}
	}
}

func TestPromptBuilder_EmptyFindings(t *testing.T) {
	is := &issue.Issue{
		Ref:   issue.Ref{Owner: "o", Repo: "r", Number: 1},
		Title: "t",
		Body:  "b",
	}
	req := NewPromptBuilder().SetIssue(is).Build(256)

	if strings.Contains(req.Prompt, "Language server findings") {
		t.Error("prompt advertises findings it does not have")
	}
}

func TestPromptBuilder_NoDiagnosticsIsExplicit(t *testing.T) {
	req := NewPromptBuilder().
		AddDiagnostics("clean.ts", nil).
		Build(256)

	if !strings.Contains(req.Prompt, "Diagnostics for clean.ts: none reported.") {
		t.Errorf("prompt = %q", req.Prompt)
	}
}

func TestPromptBuilder_UnresolvedDefinition(t *testing.T) {
	req := NewPromptBuilder().
		AddDefinitions("x.ts", lsp.Position{Line: 2, Character: 3}, nil).
		Build(256)

	if !strings.Contains(req.Prompt, "Definition at x.ts line 2, char 3: not resolved.") {
		t.Errorf("prompt = %q", req.Prompt)
	}
}
