// Package lsp provides a client harness for a local language analysis server.
//
// The harness spawns the server as a subprocess, speaks the Content-Length
// framed JSON-RPC protocol with it over stdio, multiplexes many concurrent
// logical queries over that single transport, and exposes typed operations
// (hover, completions, signature help, definition, references, diagnostics)
// to the rest of autotriage.
//
// # Architecture
//
// The package is organized around these components:
//
//   - Harness: caller-facing lifecycle and typed query operations
//   - dispatcher: correlation ids, pending-request table, per-request timers
//   - Decoder / encodeMessage: byte-stream framing
//   - serverProcess: subprocess spawn, stdio wiring, exit detection
//   - sessionTracker / PositionEncoding: open-document state and
//     position-convention translation
//
// # Quick Start
//
//	harness := lsp.NewHarness(lsp.Config{
//	    Command: "typescript-language-server",
//	    Args:    []string{"--stdio"},
//	}, logger)
//
//	if err := harness.Start(ctx, workspaceRoot); err != nil {
//	    return err
//	}
//	defer harness.Stop()
//
//	harness.OpenDocument(ctx, "/ws/repro.ts", content)
//	hover, _ := harness.Hover(ctx, "/ws/repro.ts", lsp.Position{Line: 0, Character: 7})
//
// # Error Policy
//
// Hover, completions, and signature help are best-effort lookups: server
// errors, timeouts, and malformed replies degrade to the empty result and a
// warning instead of failing the caller. Lifecycle operations and
// definition/references propagate their errors. A crashed server settles
// every outstanding request with ErrProcessExited exactly once; no caller
// ever observes an indefinite hang.
//
// # Positions
//
// All positions crossing this package's boundary are zero-based
// {line, character}. Backends that count from one are handled by configuring
// a PositionEncoding, never by adjusting call sites.
//
// # Thread Safety
//
// Harness is safe for concurrent use. There is exactly one writer path into
// the server's stdin and one reader goroutine draining its stdout; the
// pending-request table is owned by the dispatcher and guarded by one mutex.
package lsp
