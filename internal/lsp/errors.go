package lsp

import (
	"errors"
	"fmt"
)

// Standard errors returned by the language server harness.
var (
	// ErrNotRunning indicates an operation was attempted outside the Running state.
	ErrNotRunning = errors.New("language server not running")

	// ErrAlreadyStarting indicates Start was called while a start is in progress.
	ErrAlreadyStarting = errors.New("language server already starting")

	// ErrAlreadyRunning indicates Start was called on a running harness.
	ErrAlreadyRunning = errors.New("language server already running")

	// ErrNotOpen indicates a query targeted a document with no open session.
	ErrNotOpen = errors.New("document not open")

	// ErrTimeout indicates a request deadline elapsed with no reply.
	ErrTimeout = errors.New("request timed out")

	// ErrProcessExited indicates the server process terminated while requests
	// were outstanding.
	ErrProcessExited = errors.New("language server process exited")

	// ErrMalformedReply indicates a reply was missing required fields.
	ErrMalformedReply = errors.New("malformed reply from language server")
)

// StartError indicates the server process could not be spawned.
type StartError struct {
	Command string
	Err     error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Command, e.Err)
}

// Unwrap returns the underlying error.
func (e *StartError) Unwrap() error {
	return e.Err
}

// InitError indicates the initialize handshake failed or was malformed.
type InitError struct {
	Err error
}

// Error implements the error interface.
func (e *InitError) Error() string {
	return fmt.Sprintf("initialize handshake: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *InitError) Unwrap() error {
	return e.Err
}

// FramingError indicates a malformed header or body on the wire. The decoder
// discards the offending prefix and resynchronizes; the stream survives.
type FramingError struct {
	Detail string
}

// Error implements the error interface.
func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error: %s", e.Detail)
}

// ResponseError represents a protocol-level error reply from the server.
type ResponseError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("server error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("server error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeServerNotInitialized = -32002
	CodeUnknownErrorCode     = -32001
	CodeRequestCancelled     = -32800
	CodeContentModified      = -32801
)
