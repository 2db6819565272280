package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Logger is the logging capability the surrounding application supplies.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// State represents the harness lifecycle state. Only Running accepts query,
// open, and close calls; Stop is accepted from any state.
type State int32

const (
	StateNotStarted State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not started"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config defines how to start and talk to a language server.
type Config struct {
	// Command is the server executable.
	Command string

	// Args place the server into stdio mode (e.g. --stdio).
	Args []string

	// LanguageID sent with didOpen. Empty means detect from the file extension.
	LanguageID string

	// Encoding is the position convention the backend expects.
	Encoding PositionEncoding

	// StartupTimeout bounds the initialize handshake (default: 10s).
	StartupTimeout time.Duration

	// RequestTimeout bounds each query (default: 5s).
	RequestTimeout time.Duration

	// ShutdownTimeout bounds the graceful shutdown request (default: 2s).
	ShutdownTimeout time.Duration

	// InitializationOptions are sent during initialize.
	InitializationOptions any

	// Clock supplies request timers. Nil means the real clock.
	Clock Clock
}

// Harness owns one language server subprocess and exposes typed query
// operations over it. Many logical requests may be outstanding at once over
// the single stdio transport; responses are matched strictly by id.
type Harness struct {
	config Config
	log    Logger

	state atomic.Int32

	mu   sync.Mutex
	proc *serverProcess
	disp *dispatcher

	sessions *sessionTracker

	diagMu      sync.RWMutex
	diagnostics map[string][]Diagnostic

	serverInfo *ServerInfo
}

// NewHarness creates a harness for the given server configuration.
// The returned harness is in StateNotStarted until Start succeeds.
func NewHarness(config Config, logger Logger) *Harness {
	if config.StartupTimeout == 0 {
		config.StartupTimeout = 10 * time.Second
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 5 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 2 * time.Second
	}
	if config.Clock == nil {
		config.Clock = realClock{}
	}
	return &Harness{
		config:      config,
		log:         logger,
		sessions:    newSessionTracker(),
		diagnostics: make(map[string][]Diagnostic),
	}
}

// State returns the current lifecycle state.
func (h *Harness) State() State {
	return State(h.state.Load())
}

// Start spawns the server with workspaceRoot as its working directory and
// performs the initialize handshake. It returns only once the server is
// ready to accept queries. Spawn failures surface as *StartError, handshake
// failures as *InitError.
func (h *Harness) Start(ctx context.Context, workspaceRoot string) error {
	h.mu.Lock()
	switch h.State() {
	case StateStarting:
		h.mu.Unlock()
		return ErrAlreadyStarting
	case StateRunning:
		h.mu.Unlock()
		return ErrAlreadyRunning
	case StateStopping:
		h.mu.Unlock()
		return ErrNotRunning
	}
	h.state.Store(int32(StateStarting))

	proc, err := startServerProcess(h.config.Command, h.config.Args, workspaceRoot)
	if err != nil {
		h.state.Store(int32(StateStopped))
		h.mu.Unlock()
		return err
	}

	disp := newDispatcher(proc.stdin, h.config.Clock, h.log)
	disp.onNotification = h.handleNotification
	h.proc = proc
	h.disp = disp
	h.mu.Unlock()

	go proc.drainStderr(h.log)
	go h.readLoop(proc.stdout, proc, disp)

	h.log.Debug("started %s (pid %d) in %s", h.config.Command, proc.pid(), workspaceRoot)

	if err := h.handshake(ctx, disp, workspaceRoot); err != nil {
		h.teardown(proc, disp, ErrProcessExited)
		return &InitError{Err: err}
	}

	if !h.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		// Stopped while the handshake was in flight.
		return ErrNotRunning
	}
	return nil
}

// handshake performs the initialize request / initialized notification pair.
func (h *Harness) handshake(ctx context.Context, disp *dispatcher, workspaceRoot string) error {
	params := InitializeParams{
		ProcessID:             os.Getpid(),
		RootURI:               FilePathToURI(workspaceRoot),
		Capabilities:          defaultClientCapabilities(),
		InitializationOptions: h.config.InitializationOptions,
	}

	raw, err := disp.Call(ctx, "initialize", params, h.config.StartupTimeout)
	if err != nil {
		return err
	}

	var result InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return err
	}
	if len(result.Capabilities) == 0 {
		return errors.New("initialize reply has no capabilities")
	}
	if result.ServerInfo != nil {
		h.mu.Lock()
		h.serverInfo = result.ServerInfo
		h.mu.Unlock()
		h.log.Debug("server: %s %s", result.ServerInfo.Name, result.ServerInfo.Version)
	}

	return disp.Notify("initialized", InitializedParams{})
}

// Stop gracefully shuts the server down, then force-terminates it. Every
// pending request settles with ErrProcessExited and all document sessions
// are cleared. Idempotent and safe from any state, including concurrently
// with in-flight requests.
func (h *Harness) Stop() error {
	h.mu.Lock()
	switch h.State() {
	case StateNotStarted, StateStopped:
		h.state.Store(int32(StateStopped))
		h.mu.Unlock()
		return nil
	case StateStopping:
		h.mu.Unlock()
		return nil
	}
	h.state.Store(int32(StateStopping))
	proc := h.proc
	disp := h.disp
	h.proc = nil
	h.disp = nil
	h.mu.Unlock()

	if disp != nil {
		// Best-effort graceful exit; the server may already be gone.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.config.ShutdownTimeout)
		_, _ = disp.Call(shutdownCtx, "shutdown", nil, h.config.ShutdownTimeout)
		cancel()
		_ = disp.Notify("exit", nil)
		disp.Close(ErrProcessExited)
	}
	if proc != nil {
		// Give the server a chance to honor the exit notification.
		select {
		case <-proc.exitCh:
		case <-time.After(h.config.ShutdownTimeout):
		}
		proc.kill()
	}

	h.sessions.clear()
	h.clearDiagnostics()
	h.state.Store(int32(StateStopped))
	return nil
}

// teardown cleans up after a failed start or an unexpected exit.
func (h *Harness) teardown(proc *serverProcess, disp *dispatcher, reason error) {
	disp.Close(reason)
	if proc != nil {
		proc.kill()
	}

	h.mu.Lock()
	if h.proc == proc {
		h.proc = nil
		h.disp = nil
	}
	h.mu.Unlock()

	h.sessions.clear()
	h.clearDiagnostics()
	h.state.Store(int32(StateStopped))
}

// readLoop continuously drains, frames, and dispatches server stdout.
// It exits when the stream ends, which it treats as process death unless a
// stop is already in progress.
func (h *Harness) readLoop(r io.Reader, proc *serverProcess, disp *dispatcher) {
	dec := NewDecoder(r)
	for {
		msg, err := dec.Next()
		if err != nil {
			var framingErr *FramingError
			if errors.As(err, &framingErr) {
				h.log.Warn("resynchronized after %v", framingErr)
				continue
			}
			break
		}
		disp.Dispatch(msg)
	}

	state := h.State()
	if state == StateStopping || state == StateStopped {
		// Expected: Stop or a failed Start already owns cleanup.
		return
	}

	pid := 0
	if proc != nil {
		pid = proc.pid()
	}
	h.log.Warn("language server exited unexpectedly (pid %d)", pid)
	h.teardown(proc, disp, ErrProcessExited)
}

// handleNotification routes server-initiated notifications. Diagnostics feed
// the per-document cache; everything else is logged and dropped.
func (h *Harness) handleNotification(method string, params json.RawMessage) {
	switch method {
	case "textDocument/publishDiagnostics":
		var p publishDiagnosticsParams
		if err := json.Unmarshal(params, &p); err != nil {
			h.log.Debug("bad publishDiagnostics payload: %v", err)
			return
		}
		for i := range p.Diagnostics {
			p.Diagnostics[i].Range = h.config.Encoding.rangeFromBackend(p.Diagnostics[i].Range)
		}
		path := URIToFilePath(p.URI)
		h.diagMu.Lock()
		h.diagnostics[path] = p.Diagnostics
		h.diagMu.Unlock()
	case "window/logMessage", "window/showMessage":
		var p struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(params, &p)
		h.log.Debug("server message: %s", p.Message)
	default:
		h.log.Debug("ignoring notification %q", method)
	}
}

// running returns the dispatcher when the harness accepts calls.
func (h *Harness) running() (*dispatcher, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.State() != StateRunning || h.disp == nil {
		return nil, ErrNotRunning
	}
	return h.disp, nil
}

// --- Document sessions ---

// OpenDocument sends the open notification with the full text and records
// the session. Opening an already-open path is a no-op.
func (h *Harness) OpenDocument(ctx context.Context, path, content string) error {
	disp, err := h.running()
	if err != nil {
		return err
	}

	if !h.sessions.add(path) {
		return nil
	}

	languageID := h.config.LanguageID
	if languageID == "" {
		languageID = DetectLanguageID(path)
	}

	params := didOpenParams{
		TextDocument: TextDocumentItem{
			URI:        FilePathToURI(path),
			LanguageID: languageID,
			Version:    1,
			Text:       content,
		},
	}
	if err := disp.Notify("textDocument/didOpen", params); err != nil {
		h.sessions.remove(path)
		return err
	}
	return nil
}

// CloseDocument sends the close notification and removes the session.
// Idempotent on unknown paths.
func (h *Harness) CloseDocument(ctx context.Context, path string) error {
	disp, err := h.running()
	if err != nil {
		return err
	}

	if !h.sessions.remove(path) {
		return nil
	}

	h.diagMu.Lock()
	delete(h.diagnostics, path)
	h.diagMu.Unlock()

	params := didCloseParams{TextDocument: TextDocumentIdentifier{URI: FilePathToURI(path)}}
	return disp.Notify("textDocument/didClose", params)
}

// IsDocumentOpen reports whether path has an open session.
func (h *Harness) IsDocumentOpen(path string) bool {
	return h.sessions.isOpen(path)
}

// --- Queries ---

// Hover returns hover information at pos, or nil when the server has none.
// Server errors and timeouts degrade to nil: hover is a best-effort lookup
// and never aborts the caller.
func (h *Harness) Hover(ctx context.Context, path string, pos Position) (*Hover, error) {
	disp, err := h.running()
	if err != nil {
		return nil, err
	}
	if !h.sessions.isOpen(path) {
		h.log.Debug("hover on unopened document %s", path)
		return nil, nil
	}

	raw, err := disp.Call(ctx, "textDocument/hover", h.positionParams(path, pos), h.config.RequestTimeout)
	if err != nil {
		return nil, h.absorb("hover", err)
	}
	hover, err := parseHoverResult(raw)
	if err != nil {
		return nil, h.absorb("hover", err)
	}
	if hover != nil && hover.Range != nil {
		r := h.config.Encoding.rangeFromBackend(*hover.Range)
		hover.Range = &r
	}
	return hover, nil
}

// Completions returns completion items at pos. Failures degrade to an empty
// slice, never an error the caller must handle.
func (h *Harness) Completions(ctx context.Context, path string, pos Position) ([]CompletionItem, error) {
	disp, err := h.running()
	if err != nil {
		return nil, err
	}
	if !h.sessions.isOpen(path) {
		h.log.Debug("completion on unopened document %s", path)
		return []CompletionItem{}, nil
	}

	params := completionParams{
		TextDocumentPositionParams: h.positionParams(path, pos),
		Context:                    &completionContext{TriggerKind: completionTriggerInvoked},
	}
	raw, err := disp.Call(ctx, "textDocument/completion", params, h.config.RequestTimeout)
	if err != nil {
		return []CompletionItem{}, h.absorb("completion", err)
	}
	items, err := parseCompletionResult(raw)
	if err != nil {
		return []CompletionItem{}, h.absorb("completion", err)
	}
	return items, nil
}

// SignatureHelp returns signature information at pos, or nil when the server
// has none. Failures degrade to nil.
func (h *Harness) SignatureHelp(ctx context.Context, path string, pos Position) (*SignatureHelp, error) {
	disp, err := h.running()
	if err != nil {
		return nil, err
	}
	if !h.sessions.isOpen(path) {
		h.log.Debug("signature help on unopened document %s", path)
		return nil, nil
	}

	raw, err := disp.Call(ctx, "textDocument/signatureHelp", h.positionParams(path, pos), h.config.RequestTimeout)
	if err != nil {
		return nil, h.absorb("signature help", err)
	}
	help, err := parseSignatureHelpResult(raw)
	if err != nil {
		return nil, h.absorb("signature help", err)
	}
	return help, nil
}

// Definition returns the definition locations for the symbol at pos.
// Unlike the advisory lookups, failures propagate to the caller.
func (h *Harness) Definition(ctx context.Context, path string, pos Position) ([]Location, error) {
	return h.locations(ctx, "textDocument/definition", path, h.positionParams(path, pos))
}

// References returns all references to the symbol at pos, including the
// declaration. Failures propagate to the caller.
func (h *Harness) References(ctx context.Context, path string, pos Position) ([]Location, error) {
	params := referenceParams{
		TextDocumentPositionParams: h.positionParams(path, pos),
		Context:                    referenceContext{IncludeDeclaration: true},
	}
	return h.locations(ctx, "textDocument/references", path, params)
}

// locations runs a location-valued query and normalizes the reply.
func (h *Harness) locations(ctx context.Context, method, path string, params any) ([]Location, error) {
	disp, err := h.running()
	if err != nil {
		return nil, err
	}
	if !h.sessions.isOpen(path) {
		return nil, ErrNotOpen
	}

	raw, err := disp.Call(ctx, method, params, h.config.RequestTimeout)
	if err != nil {
		return nil, err
	}
	locs, err := parseLocationResult(raw)
	if err != nil {
		return nil, err
	}
	for i := range locs {
		locs[i].Range = h.config.Encoding.rangeFromBackend(locs[i].Range)
	}
	return locs, nil
}

// Diagnostics returns the latest diagnostics pushed for path. Diagnostics
// arrive as unsolicited notifications in this protocol family, so this never
// issues a request; before the first push it returns an empty slice.
func (h *Harness) Diagnostics(path string) []Diagnostic {
	h.diagMu.RLock()
	defer h.diagMu.RUnlock()
	diags := h.diagnostics[path]
	out := make([]Diagnostic, len(diags))
	copy(out, diags)
	return out
}

// WaitForDiagnostics polls until diagnostics arrive for path or the timeout
// elapses. Servers publish asynchronously after didOpen, so callers that
// want diagnostics immediately after opening must wait for the push.
func (h *Harness) WaitForDiagnostics(ctx context.Context, path string, timeout time.Duration) []Diagnostic {
	deadline := time.Now().Add(timeout)
	for {
		h.diagMu.RLock()
		diags, seen := h.diagnostics[path]
		h.diagMu.RUnlock()
		if seen {
			out := make([]Diagnostic, len(diags))
			copy(out, diags)
			return out
		}
		if time.Now().After(deadline) || ctx.Err() != nil {
			return []Diagnostic{}
		}
		select {
		case <-ctx.Done():
			return []Diagnostic{}
		case <-time.After(25 * time.Millisecond):
		}
	}
}

// ServerInfo returns the server's self-reported identity, when it sent one.
func (h *Harness) ServerInfo() *ServerInfo {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serverInfo
}

// positionParams builds position params in the backend's convention.
func (h *Harness) positionParams(path string, pos Position) TextDocumentPositionParams {
	return TextDocumentPositionParams{
		TextDocument: TextDocumentIdentifier{URI: FilePathToURI(path)},
		Position:     h.config.Encoding.ToBackend(pos),
	}
}

// absorb converts degradable failures on advisory queries into "no result".
// Server error replies, timeouts, and malformed replies are logged and
// swallowed; anything else (process death, cancellation) propagates.
func (h *Harness) absorb(op string, err error) error {
	var respErr *ResponseError
	if errors.Is(err, ErrTimeout) || errors.Is(err, ErrMalformedReply) || errors.As(err, &respErr) {
		h.log.Warn("%s failed: %v", op, err)
		return nil
	}
	return err
}

// clearDiagnostics drops the whole diagnostics cache.
func (h *Harness) clearDiagnostics() {
	h.diagMu.Lock()
	h.diagnostics = make(map[string][]Diagnostic)
	h.diagMu.Unlock()
}
