// Package triage runs the end-to-end pipeline: fetch an issue, reproduce its
// code in a scratch workspace, interrogate a language server about it, ask an
// AI provider for an assessment, and assemble the report.
package triage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode"

	"github.com/dshills/autotriage/internal/config"
	"github.com/dshills/autotriage/internal/issue"
	"github.com/dshills/autotriage/internal/log"
	"github.com/dshills/autotriage/internal/lsp"
	"github.com/dshills/autotriage/internal/report"
	"github.com/dshills/autotriage/internal/review"
)

// maxQueryPoints bounds hover/definition probing per file.
const maxQueryPoints = 5

// diagnosticsSettle is how long to wait for the server's first diagnostics
// push per file.
const diagnosticsSettle = 3 * time.Second

// analyzer is the slice of the language server harness the pipeline uses.
type analyzer interface {
	Start(ctx context.Context, workspaceRoot string) error
	Stop() error
	OpenDocument(ctx context.Context, path, content string) error
	Hover(ctx context.Context, path string, pos lsp.Position) (*lsp.Hover, error)
	Definition(ctx context.Context, path string, pos lsp.Position) ([]lsp.Location, error)
	WaitForDiagnostics(ctx context.Context, path string, timeout time.Duration) []lsp.Diagnostic
	ServerInfo() *lsp.ServerInfo
}

// fetcher is the slice of the issue client the pipeline uses.
type fetcher interface {
	Fetch(ctx context.Context, ref issue.Ref) (*issue.Issue, error)
}

// Runner executes triage runs.
type Runner struct {
	cfg    *config.Config
	logger *log.Logger

	// Injection points for tests; nil selects the real implementation.
	fetch       fetcher
	provider    review.Provider
	newAnalyzer func(server config.ServerConfig) analyzer
}

// NewRunner wires a Runner from configuration. provider may be nil, in which
// case the report carries no assessment.
func NewRunner(cfg *config.Config, provider review.Provider, logger *log.Logger) *Runner {
	return &Runner{cfg: cfg, provider: provider, logger: logger}
}

// Run triages one issue and returns the report data.
func (r *Runner) Run(ctx context.Context, ref issue.Ref) (*report.Data, error) {
	is, err := r.fetchIssue(ctx, ref)
	if err != nil {
		return nil, err
	}
	r.logger.Info("fetched %s: %q (%d comments)", ref, is.Title, len(is.Comments))

	data := &report.Data{Issue: is, GeneratedAt: time.Now()}
	if r.provider != nil {
		data.Provider = r.provider.Name()
	}

	prompt := review.NewPromptBuilder().SetIssue(is)

	snippets := issue.TypeScriptSnippets(is.Snippets())
	if len(snippets) == 0 {
		r.logger.Warn("%s has no usable code snippets", ref)
		note := "issue contains no TypeScript/JavaScript code blocks; no server analysis performed"
		data.Notes = append(data.Notes, note)
		prompt.AddNote(note)
	} else {
		if err := r.analyze(ctx, snippets, data, prompt); err != nil {
			return nil, err
		}
	}

	if r.provider != nil {
		req := prompt.Build(r.cfg.AI().MaxTokens)
		assessment, err := r.provider.Complete(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("assessment: %w", err)
		}
		data.Assessment = assessment
	} else {
		data.Assessment = "_Assessment skipped._"
	}

	return data, nil
}

func (r *Runner) fetchIssue(ctx context.Context, ref issue.Ref) (*issue.Issue, error) {
	if r.fetch == nil {
		gh := r.cfg.GitHub()
		cache := issue.NewCache(gh.CacheDir, gh.CacheTTL)
		r.fetch = issue.NewClient(gh.APIBaseURL, gh.Token, cache)
	}
	return r.fetch.Fetch(ctx, ref)
}

// analyze writes the snippets into a scratch workspace and collects the
// language server's findings for each.
func (r *Runner) analyze(ctx context.Context, snippets []issue.Snippet, data *report.Data, prompt *review.PromptBuilder) error {
	root, err := os.MkdirTemp("", "autotriage-*")
	if err != nil {
		return fmt.Errorf("scratch workspace: %w", err)
	}
	defer os.RemoveAll(root)

	files := make([]string, 0, len(snippets))
	for i, s := range snippets {
		name := fmt.Sprintf("snippet-%d%s", i+1, s.FileExtension())
		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte(s.Code), 0o644); err != nil {
			return fmt.Errorf("scratch workspace: %w", err)
		}
		files = append(files, path)
	}

	server := r.cfg.Server()
	h := r.harness(server)
	if err := h.Start(ctx, root); err != nil {
		return fmt.Errorf("language server: %w", err)
	}
	defer func() {
		if err := h.Stop(); err != nil {
			r.logger.Warn("language server stop failed: %v", err)
		}
	}()

	if info := h.ServerInfo(); info != nil {
		data.Server = info.Name
		if info.Version != "" {
			data.Server += " " + info.Version
		}
	} else {
		data.Server = server.Command
	}

	for i, path := range files {
		findings, err := r.analyzeFile(ctx, h, path, snippets[i], prompt)
		if err != nil {
			return err
		}
		data.Files = append(data.Files, findings)
	}
	return nil
}

func (r *Runner) analyzeFile(ctx context.Context, h analyzer, path string, snip issue.Snippet, prompt *review.PromptBuilder) (report.FileFindings, error) {
	name := filepath.Base(path)
	findings := report.FileFindings{
		Path:     name,
		Language: lsp.DetectLanguageID(path),
		Code:     snip.Code,
	}

	if err := h.OpenDocument(ctx, path, snip.Code); err != nil {
		return findings, fmt.Errorf("open %s: %w", name, err)
	}

	findings.Diagnostics = h.WaitForDiagnostics(ctx, path, diagnosticsSettle)
	prompt.AddSnippet(name, snip.Language, snip.Code)
	prompt.AddDiagnostics(name, findings.Diagnostics)
	r.logger.Debug("%s: %d diagnostics", name, len(findings.Diagnostics))

	points := queryPoints(snip.Code, maxQueryPoints)
	for _, pos := range points {
		hover, err := h.Hover(ctx, path, pos)
		if err != nil {
			return findings, fmt.Errorf("hover %s: %w", name, err)
		}
		if hover != nil {
			findings.HoverTexts = append(findings.HoverTexts, hover.Contents)
			prompt.AddHover(name, pos, hover.Contents)
		}
	}

	if len(points) > 0 {
		locs, err := h.Definition(ctx, path, points[0])
		if err != nil {
			return findings, fmt.Errorf("definition %s: %w", name, err)
		}
		prompt.AddDefinitions(name, points[0], locs)
	}

	return findings, nil
}

func (r *Runner) harness(server config.ServerConfig) analyzer {
	if r.newAnalyzer != nil {
		return r.newAnalyzer(server)
	}

	encoding := lsp.ZeroBased
	if server.OneBasedPositions {
		encoding = lsp.OneBased
	}
	return lsp.NewHarness(lsp.Config{
		Command:         server.Command,
		Args:            server.Args,
		LanguageID:      server.LanguageID,
		Encoding:        encoding,
		StartupTimeout:  server.StartupTimeout,
		RequestTimeout:  server.RequestTimeout,
		ShutdownTimeout: server.ShutdownTimeout,
	}, r.logger.WithComponent("lsp"))
}

// queryPoints picks up to max positions worth interrogating: the first
// identifier character on each non-empty line.
func queryPoints(code string, max int) []lsp.Position {
	var points []lsp.Position
	line := 0
	col := 0
	found := false

	for _, r := range code {
		switch {
		case r == '\n':
			line++
			col = 0
			found = false
			continue
		case !found && (unicode.IsLetter(r) || r == '_'):
			points = append(points, lsp.Position{Line: line, Character: col})
			found = true
			if len(points) == max {
				return points
			}
		}
		col++
	}
	return points
}
