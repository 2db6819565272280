package lsp

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"runtime"
	"strings"
)

// DocumentURI represents a URI as used on the wire, typically file://.
type DocumentURI string

// Position in a text document expressed as zero-based line and character
// offset. Every caller-facing position uses this convention; PositionEncoding
// handles whatever the live backend expects.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range in a text document expressed as start and end positions.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location represents a location inside a resource.
type Location struct {
	URI   DocumentURI `json:"uri"`
	Range Range       `json:"range"`
}

// locationLink is the link-flavored definition reply some servers prefer.
type locationLink struct {
	TargetURI            DocumentURI `json:"targetUri"`
	TargetRange          Range       `json:"targetRange"`
	TargetSelectionRange *Range      `json:"targetSelectionRange"`
}

// TextDocumentIdentifier identifies a text document.
type TextDocumentIdentifier struct {
	URI DocumentURI `json:"uri"`
}

// TextDocumentItem is an item to transfer a text document to the server.
type TextDocumentItem struct {
	URI        DocumentURI `json:"uri"`
	LanguageID string      `json:"languageId"`
	Version    int         `json:"version"`
	Text       string      `json:"text"`
}

// TextDocumentPositionParams is a parameter literal used in requests to pass
// a text document and a position inside that document.
type TextDocumentPositionParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
	Position     Position               `json:"position"`
}

// --- Initialize ---

// InitializeParams are the parameters sent in an initialize request.
type InitializeParams struct {
	ProcessID             int                `json:"processId"`
	RootURI               DocumentURI        `json:"rootUri,omitempty"`
	Capabilities          ClientCapabilities `json:"capabilities"`
	InitializationOptions any                `json:"initializationOptions,omitempty"`
}

// InitializeResult is the result of the initialize request.
type InitializeResult struct {
	Capabilities json.RawMessage `json:"capabilities"`
	ServerInfo   *ServerInfo     `json:"serverInfo,omitempty"`
}

// ServerInfo describes the server from initialization.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// InitializedParams are the parameters sent in an initialized notification.
type InitializedParams struct{}

// ClientCapabilities define what this harness supports. The triage queries
// only need the text document surface.
type ClientCapabilities struct {
	TextDocument *TextDocumentClientCapabilities `json:"textDocument,omitempty"`
}

// TextDocumentClientCapabilities define capabilities for text documents.
type TextDocumentClientCapabilities struct {
	Hover              *HoverClientCapabilities              `json:"hover,omitempty"`
	Completion         *CompletionClientCapabilities         `json:"completion,omitempty"`
	SignatureHelp      *SignatureHelpClientCapabilities      `json:"signatureHelp,omitempty"`
	PublishDiagnostics *PublishDiagnosticsClientCapabilities `json:"publishDiagnostics,omitempty"`
}

// HoverClientCapabilities define capabilities for hover.
type HoverClientCapabilities struct {
	ContentFormat []string `json:"contentFormat,omitempty"`
}

// CompletionClientCapabilities define capabilities for completion.
type CompletionClientCapabilities struct {
	ContextSupport bool `json:"contextSupport,omitempty"`
}

// SignatureHelpClientCapabilities define capabilities for signature help.
type SignatureHelpClientCapabilities struct {
	ContextSupport bool `json:"contextSupport,omitempty"`
}

// PublishDiagnosticsClientCapabilities define capabilities for diagnostics.
type PublishDiagnosticsClientCapabilities struct {
	RelatedInformation bool `json:"relatedInformation,omitempty"`
}

func defaultClientCapabilities() ClientCapabilities {
	return ClientCapabilities{
		TextDocument: &TextDocumentClientCapabilities{
			Hover:              &HoverClientCapabilities{ContentFormat: []string{"markdown", "plaintext"}},
			Completion:         &CompletionClientCapabilities{ContextSupport: true},
			SignatureHelp:      &SignatureHelpClientCapabilities{ContextSupport: true},
			PublishDiagnostics: &PublishDiagnosticsClientCapabilities{RelatedInformation: true},
		},
	}
}

// --- Document sync ---

// didOpenParams are the parameters for textDocument/didOpen.
type didOpenParams struct {
	TextDocument TextDocumentItem `json:"textDocument"`
}

// didCloseParams are the parameters for textDocument/didClose.
type didCloseParams struct {
	TextDocument TextDocumentIdentifier `json:"textDocument"`
}

// --- Hover ---

// Hover is the normalized hover result. Contents is always flattened to one
// string regardless of which of the several wire shapes the server used.
type Hover struct {
	Contents string
	Range    *Range
}

// --- Completion ---

// CompletionItem is one completion suggestion.
type CompletionItem struct {
	Label         string `json:"label"`
	Kind          int    `json:"kind,omitempty"`
	Detail        string `json:"detail,omitempty"`
	Documentation any    `json:"documentation,omitempty"`
	InsertText    string `json:"insertText,omitempty"`
	SortText      string `json:"sortText,omitempty"`
}

// completionList is the list-shaped completion reply.
type completionList struct {
	IsIncomplete bool             `json:"isIncomplete"`
	Items        []CompletionItem `json:"items"`
}

// completionParams are the parameters for textDocument/completion.
type completionParams struct {
	TextDocumentPositionParams
	Context *completionContext `json:"context,omitempty"`
}

type completionContext struct {
	TriggerKind int `json:"triggerKind"`
}

// completionTriggerInvoked means completion was explicitly requested.
const completionTriggerInvoked = 1

// --- Signature help ---

// SignatureHelp represents the signatures of a callable at a position.
type SignatureHelp struct {
	Signatures      []SignatureInformation `json:"signatures"`
	ActiveSignature int                    `json:"activeSignature,omitempty"`
	ActiveParameter int                    `json:"activeParameter,omitempty"`
}

// SignatureInformation describes one signature.
type SignatureInformation struct {
	Label         string                 `json:"label"`
	Documentation any                    `json:"documentation,omitempty"`
	Parameters    []ParameterInformation `json:"parameters,omitempty"`
}

// ParameterInformation describes one parameter of a signature.
type ParameterInformation struct {
	Label         any `json:"label"`
	Documentation any `json:"documentation,omitempty"`
}

// --- References ---

// referenceParams are the parameters for textDocument/references.
type referenceParams struct {
	TextDocumentPositionParams
	Context referenceContext `json:"context"`
}

type referenceContext struct {
	IncludeDeclaration bool `json:"includeDeclaration"`
}

// --- Diagnostics ---

// Diagnostic represents one problem reported for a document.
type Diagnostic struct {
	Range    Range  `json:"range"`
	Severity int    `json:"severity,omitempty"`
	Code     any    `json:"code,omitempty"`
	Source   string `json:"source,omitempty"`
	Message  string `json:"message"`
}

// Diagnostic severity levels.
const (
	SeverityError       = 1
	SeverityWarning     = 2
	SeverityInformation = 3
	SeverityHint        = 4
)

// publishDiagnosticsParams is the payload of textDocument/publishDiagnostics.
type publishDiagnosticsParams struct {
	URI         DocumentURI  `json:"uri"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// --- Reply normalization ---
//
// Backend reply shapes vary across server implementations; each parser below
// accepts every shape observed in the wild, ignores unknown fields, and turns
// missing required fields into ErrMalformedReply instead of a crash.

// parseHoverResult normalizes a hover reply. A null reply is a valid
// "no hover here" and returns (nil, nil).
func parseHoverResult(data json.RawMessage) (*Hover, error) {
	if isNullResult(data) {
		return nil, nil
	}

	var raw struct {
		Contents json.RawMessage `json:"contents"`
		Range    *Range          `json:"range"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: hover: %v", ErrMalformedReply, err)
	}
	if len(raw.Contents) == 0 {
		return nil, fmt.Errorf("%w: hover has no contents", ErrMalformedReply)
	}

	contents, err := flattenHoverContents(raw.Contents)
	if err != nil {
		return nil, err
	}
	if contents == "" {
		return nil, nil
	}
	return &Hover{Contents: contents, Range: raw.Range}, nil
}

// flattenHoverContents folds the string / MarkedString / MarkupContent /
// array shapes into one string.
func flattenHoverContents(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}

	var obj struct {
		Kind     string `json:"kind"`
		Value    string `json:"value"`
		Language string `json:"language"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && obj.Value != "" {
		return obj.Value, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err == nil {
		var texts []string
		for _, part := range parts {
			text, err := flattenHoverContents(part)
			if err != nil {
				return "", err
			}
			if text != "" {
				texts = append(texts, text)
			}
		}
		return strings.Join(texts, "\n\n"), nil
	}

	return "", fmt.Errorf("%w: unrecognized hover contents", ErrMalformedReply)
}

// parseCompletionResult normalizes a completion reply, which may be null, a
// bare item array, or a CompletionList. Absent items resolve to an empty
// slice, never nil-with-error.
func parseCompletionResult(data json.RawMessage) ([]CompletionItem, error) {
	if isNullResult(data) {
		return []CompletionItem{}, nil
	}

	var items []CompletionItem
	if err := json.Unmarshal(data, &items); err == nil {
		if items == nil {
			items = []CompletionItem{}
		}
		return items, nil
	}

	var list completionList
	if err := json.Unmarshal(data, &list); err == nil {
		if list.Items == nil {
			list.Items = []CompletionItem{}
		}
		return list.Items, nil
	}

	return nil, fmt.Errorf("%w: unrecognized completion result", ErrMalformedReply)
}

// parseSignatureHelpResult normalizes a signature help reply.
func parseSignatureHelpResult(data json.RawMessage) (*SignatureHelp, error) {
	if isNullResult(data) {
		return nil, nil
	}

	var help SignatureHelp
	if err := json.Unmarshal(data, &help); err != nil {
		return nil, fmt.Errorf("%w: signature help: %v", ErrMalformedReply, err)
	}
	if len(help.Signatures) == 0 {
		return nil, nil
	}
	return &help, nil
}

// parseLocationResult normalizes a definition or references reply, which may
// be null, a single Location, a Location array, or a LocationLink array.
func parseLocationResult(data json.RawMessage) ([]Location, error) {
	if isNullResult(data) {
		return []Location{}, nil
	}

	var loc Location
	if err := json.Unmarshal(data, &loc); err == nil && loc.URI != "" {
		return []Location{loc}, nil
	}

	var locs []Location
	if err := json.Unmarshal(data, &locs); err == nil {
		if len(locs) > 0 && locs[0].URI != "" {
			return locs, nil
		}
		if len(locs) == 0 {
			return []Location{}, nil
		}
	}

	var links []locationLink
	if err := json.Unmarshal(data, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
		locs = make([]Location, 0, len(links))
		for _, link := range links {
			rng := link.TargetRange
			if link.TargetSelectionRange != nil {
				rng = *link.TargetSelectionRange
			}
			locs = append(locs, Location{URI: link.TargetURI, Range: rng})
		}
		return locs, nil
	}

	return nil, fmt.Errorf("%w: unrecognized location result", ErrMalformedReply)
}

// isNullResult reports whether a result field is absent or JSON null.
func isNullResult(data json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(data))
	return trimmed == "" || trimmed == "null"
}

// --- URI helpers ---

// FilePathToURI converts a file path to a file:// URI.
func FilePathToURI(path string) DocumentURI {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	abs = filepath.ToSlash(abs)

	if runtime.GOOS == "windows" && !strings.HasPrefix(abs, "/") {
		abs = "/" + abs
	}

	u := url.URL{Scheme: "file", Path: abs}
	return DocumentURI(u.String())
}

// URIToFilePath converts a file:// URI back to a file path.
func URIToFilePath(uri DocumentURI) string {
	u, err := url.Parse(string(uri))
	if err != nil || u.Scheme != "file" {
		return string(uri)
	}

	path := u.Path
	if runtime.GOOS == "windows" && strings.HasPrefix(path, "/") && len(path) > 2 && path[2] == ':' {
		path = path[1:]
	}
	return filepath.FromSlash(path)
}

// DetectLanguageID guesses the language identifier from a file extension.
func DetectLanguageID(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts":
		return "typescript"
	case ".tsx":
		return "typescriptreact"
	case ".js", ".mjs", ".cjs":
		return "javascript"
	case ".jsx":
		return "javascriptreact"
	case ".go":
		return "go"
	case ".py":
		return "python"
	case ".rs":
		return "rust"
	case ".json":
		return "json"
	default:
		return "plaintext"
	}
}
