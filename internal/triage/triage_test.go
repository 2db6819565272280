package triage

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dshills/autotriage/internal/config"
	"github.com/dshills/autotriage/internal/issue"
	"github.com/dshills/autotriage/internal/log"
	"github.com/dshills/autotriage/internal/lsp"
	"github.com/dshills/autotriage/internal/review"
)

type fakeFetcher struct {
	issue *issue.Issue
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref issue.Ref) (*issue.Issue, error) {
	return f.issue, f.err
}

// fakeAnalyzer records the pipeline's harness usage and serves canned answers.
type fakeAnalyzer struct {
	started    bool
	stopped    bool
	opened     []string
	hoverCount int

	diagnostics []lsp.Diagnostic
	hover       *lsp.Hover
	definitions []lsp.Location
}

func (a *fakeAnalyzer) Start(ctx context.Context, root string) error {
	a.started = true
	return nil
}

func (a *fakeAnalyzer) Stop() error {
	a.stopped = true
	return nil
}

func (a *fakeAnalyzer) OpenDocument(ctx context.Context, path, content string) error {
	a.opened = append(a.opened, path)
	return nil
}

func (a *fakeAnalyzer) Hover(ctx context.Context, path string, pos lsp.Position) (*lsp.Hover, error) {
	a.hoverCount++
	return a.hover, nil
}

func (a *fakeAnalyzer) Definition(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error) {
	return a.definitions, nil
}

func (a *fakeAnalyzer) WaitForDiagnostics(ctx context.Context, path string, timeout time.Duration) []lsp.Diagnostic {
	return a.diagnostics
}

func (a *fakeAnalyzer) ServerInfo() *lsp.ServerInfo {
	return &lsp.ServerInfo{Name: "fake-ls", Version: "1.0"}
}

type fakeProvider struct {
	req  review.Request
	text string
	err  error
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, req review.Request) (string, error) {
	p.req = req
	return p.text, p.err
}

func testIssue() *issue.Issue {
	return &issue.Issue{
		Ref:    issue.Ref{Owner: "owner", Repo: "repo", Number: 7},
		Title:  "Wrong hover",
		Body:   "Repro:\n```ts\nconst x: string = \"hi\";\n```\n",
		State:  "open",
		Author: "reporter",
	}
}

func newTestRunner(fetch fetcher, provider review.Provider, a *fakeAnalyzer) *Runner {
	r := NewRunner(config.Default(), provider, log.Null)
	r.fetch = fetch
	if a != nil {
		r.newAnalyzer = func(config.ServerConfig) analyzer { return a }
	}
	return r
}

func TestRunner_FullPipeline(t *testing.T) {
	a := &fakeAnalyzer{
		diagnostics: []lsp.Diagnostic{{
			Severity: lsp.SeverityError,
			Message:  "Type mismatch.",
		}},
		hover:       &lsp.Hover{Contents: "const x: string"},
		definitions: []lsp.Location{{URI: "file:///scratch/snippet-1.ts"}},
	}
	provider := &fakeProvider{text: "Reproduces; hover text is wrong."}
	r := newTestRunner(&fakeFetcher{issue: testIssue()}, provider, a)

	data, err := r.Run(context.Background(), testIssue().Ref)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !a.started || !a.stopped {
		t.Errorf("harness lifecycle: started=%v stopped=%v", a.started, a.stopped)
	}
	if len(a.opened) != 1 || !strings.HasSuffix(a.opened[0], "snippet-1.ts") {
		t.Errorf("opened = %v", a.opened)
	}
	if a.hoverCount == 0 {
		t.Error("pipeline never hovered")
	}

	if data.Server != "fake-ls 1.0" {
		t.Errorf("Server = %q", data.Server)
	}
	if data.Provider != "fake" {
		t.Errorf("Provider = %q", data.Provider)
	}
	if data.Assessment != "Reproduces; hover text is wrong." {
		t.Errorf("Assessment = %q", data.Assessment)
	}
	if len(data.Files) != 1 || len(data.Files[0].Diagnostics) != 1 {
		t.Fatalf("Files = %+v", data.Files)
	}
	if len(data.Files[0].HoverTexts) == 0 || data.Files[0].HoverTexts[0] != "const x: string" {
		t.Errorf("HoverTexts = %v", data.Files[0].HoverTexts)
	}

	// The provider saw the grounded prompt.
	for _, want := range []string{"Wrong hover", "Type mismatch.", "const x: string"} {
		if !strings.Contains(provider.req.Prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestRunner_NoSnippets(t *testing.T) {
	is := testIssue()
	is.Body = "There is no code here, just words."
	provider := &fakeProvider{text: "Cannot reproduce without code."}

	r := newTestRunner(&fakeFetcher{issue: is}, provider, nil)
	r.newAnalyzer = func(config.ServerConfig) analyzer {
		t.Fatal("analyzer built for an issue with no snippets")
		return nil
	}

	data, err := r.Run(context.Background(), is.Ref)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(data.Notes) != 1 || !strings.Contains(data.Notes[0], "no TypeScript/JavaScript code blocks") {
		t.Errorf("Notes = %v", data.Notes)
	}
	if !strings.Contains(provider.req.Prompt, "no TypeScript/JavaScript code blocks") {
		t.Error("prompt does not flag the missing snippets")
	}
}

func TestRunner_NoProvider(t *testing.T) {
	a := &fakeAnalyzer{}
	r := newTestRunner(&fakeFetcher{issue: testIssue()}, nil, a)

	data, err := r.Run(context.Background(), testIssue().Ref)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if data.Assessment != "_Assessment skipped._" {
		t.Errorf("Assessment = %q", data.Assessment)
	}
	if data.Provider != "" {
		t.Errorf("Provider = %q", data.Provider)
	}
}

func TestRunner_FetchError(t *testing.T) {
	r := newTestRunner(&fakeFetcher{err: issue.ErrNotFound}, nil, nil)

	_, err := r.Run(context.Background(), issue.Ref{Owner: "o", Repo: "r", Number: 404})
	if !errors.Is(err, issue.ErrNotFound) {
		t.Errorf("Run() error = %v, want ErrNotFound", err)
	}
}

func TestRunner_ProviderError(t *testing.T) {
	a := &fakeAnalyzer{}
	provider := &fakeProvider{err: review.ErrEmptyReply}
	r := newTestRunner(&fakeFetcher{issue: testIssue()}, provider, a)

	_, err := r.Run(context.Background(), testIssue().Ref)
	if !errors.Is(err, review.ErrEmptyReply) {
		t.Errorf("Run() error = %v, want ErrEmptyReply", err)
	}
	if !a.stopped {
		t.Error("harness left running after provider failure")
	}
}

func TestQueryPoints(t *testing.T) {
	code := "const x = 1;\n\n  let y = 2;\n// comment only\nz"
	points := queryPoints(code, 10)

	want := []lsp.Position{
		{Line: 0, Character: 0},
		{Line: 2, Character: 2},
		{Line: 3, Character: 3},
		{Line: 4, Character: 0},
	}
	if len(points) != len(want) {
		t.Fatalf("queryPoints() = %v, want %v", points, want)
	}
	for i := range want {
		if points[i] != want[i] {
			t.Errorf("points[%d] = %+v, want %+v", i, points[i], want[i])
		}
	}
}

func TestQueryPoints_Cap(t *testing.T) {
	code := strings.Repeat("x\n", 20)
	if got := queryPoints(code, 5); len(got) != 5 {
		t.Errorf("queryPoints() returned %d points, want 5", len(got))
	}
}
