package lsp

import (
	"sort"
	"testing"
)

func TestPositionEncoding_RoundTrip(t *testing.T) {
	encodings := []struct {
		name string
		enc  PositionEncoding
	}{
		{"zero-based", ZeroBased},
		{"one-based", OneBased},
		{"mixed", PositionEncoding{LineBase: 1, CharacterBase: 0}},
	}
	positions := []Position{
		{Line: 0, Character: 0},     // start of an empty document
		{Line: 0, Character: 22},    // last character of a line
		{Line: 41, Character: 0},    // start of a later line
		{Line: 1000, Character: 80}, // deep in a large file
	}

	for _, e := range encodings {
		for _, p := range positions {
			if got := e.enc.FromBackend(e.enc.ToBackend(p)); got != p {
				t.Errorf("%s: FromBackend(ToBackend(%+v)) = %+v", e.name, p, got)
			}
		}
	}
}

func TestPositionEncoding_OneBasedTranslation(t *testing.T) {
	p := Position{Line: 0, Character: 7}

	backend := OneBased.ToBackend(p)
	if backend.Line != 1 || backend.Character != 8 {
		t.Errorf("ToBackend(%+v) = %+v, want {1 8}", p, backend)
	}

	local := OneBased.FromBackend(Position{Line: 1, Character: 8})
	if local != p {
		t.Errorf("FromBackend({1 8}) = %+v, want %+v", local, p)
	}
}

func TestPositionEncoding_RangeFromBackend(t *testing.T) {
	r := Range{
		Start: Position{Line: 3, Character: 1},
		End:   Position{Line: 3, Character: 9},
	}
	got := OneBased.rangeFromBackend(r)
	want := Range{
		Start: Position{Line: 2, Character: 0},
		End:   Position{Line: 2, Character: 8},
	}
	if got != want {
		t.Errorf("rangeFromBackend(%+v) = %+v, want %+v", r, got, want)
	}
}

func TestSessionTracker(t *testing.T) {
	tr := newSessionTracker()

	if tr.isOpen("/a.ts") {
		t.Error("isOpen() = true for fresh tracker")
	}
	if !tr.add("/a.ts") {
		t.Error("add() = false for new path")
	}
	if tr.add("/a.ts") {
		t.Error("add() = true for already-open path")
	}
	if !tr.isOpen("/a.ts") {
		t.Error("isOpen() = false after add")
	}

	tr.add("/b.ts")
	paths := tr.openPaths()
	sort.Strings(paths)
	if len(paths) != 2 || paths[0] != "/a.ts" || paths[1] != "/b.ts" {
		t.Errorf("openPaths() = %v", paths)
	}

	if !tr.remove("/a.ts") {
		t.Error("remove() = false for open path")
	}
	if tr.remove("/a.ts") {
		t.Error("remove() = true for already-closed path")
	}

	tr.clear()
	if tr.isOpen("/b.ts") {
		t.Error("isOpen() = true after clear")
	}
}
