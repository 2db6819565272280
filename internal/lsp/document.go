package lsp

import "sync"

// PositionEncoding describes the line/character numbering convention a
// backend expects. Callers of this package always use zero-based positions;
// the two observed backend families disagree (zero- vs one-based), so the
// convention is explicit configuration rather than a hard-coded assumption.
type PositionEncoding struct {
	// LineBase is the backend's number for the first line (0 or 1).
	LineBase int
	// CharacterBase is the backend's number for the first character (0 or 1).
	CharacterBase int
}

// ZeroBased is the convention of the base protocol.
var ZeroBased = PositionEncoding{}

// OneBased is the convention of backends that count from 1.
var OneBased = PositionEncoding{LineBase: 1, CharacterBase: 1}

// ToBackend translates a caller-facing zero-based position into the
// backend's convention. Pure; the inverse of FromBackend.
func (e PositionEncoding) ToBackend(p Position) Position {
	return Position{Line: p.Line + e.LineBase, Character: p.Character + e.CharacterBase}
}

// FromBackend translates a backend position into the caller-facing
// zero-based convention. Pure; the inverse of ToBackend.
func (e PositionEncoding) FromBackend(p Position) Position {
	return Position{Line: p.Line - e.LineBase, Character: p.Character - e.CharacterBase}
}

// rangeFromBackend translates both ends of a range.
func (e PositionEncoding) rangeFromBackend(r Range) Range {
	return Range{Start: e.FromBackend(r.Start), End: e.FromBackend(r.End)}
}

// DocumentSession records the open state of one file.
type DocumentSession struct {
	Path    string
	URI     DocumentURI
	Version int
}

// sessionTracker tracks which documents are open. Query operations require
// an open session for their target path.
type sessionTracker struct {
	mu       sync.RWMutex
	sessions map[string]*DocumentSession
}

func newSessionTracker() *sessionTracker {
	return &sessionTracker{sessions: make(map[string]*DocumentSession)}
}

// add records a session for path. It reports false when the path is already
// open, which callers treat as a no-op, not an error.
func (t *sessionTracker) add(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[path]; exists {
		return false
	}
	t.sessions[path] = &DocumentSession{
		Path:    path,
		URI:     FilePathToURI(path),
		Version: 1,
	}
	return true
}

// remove deletes the session for path, reporting whether one existed.
func (t *sessionTracker) remove(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.sessions[path]; !exists {
		return false
	}
	delete(t.sessions, path)
	return true
}

// isOpen reports whether path has an open session.
func (t *sessionTracker) isOpen(path string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, exists := t.sessions[path]
	return exists
}

// clear drops every session.
func (t *sessionTracker) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions = make(map[string]*DocumentSession)
}

// openPaths returns the paths of all open sessions.
func (t *sessionTracker) openPaths() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	paths := make([]string, 0, len(t.sessions))
	for path := range t.sessions {
		paths = append(paths, path)
	}
	return paths
}
