package lsp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
)

// chunkReader yields its contents in fixed-size chunks so framing tests can
// split frames at arbitrary byte boundaries.
type chunkReader struct {
	data  []byte
	chunk int
	off   int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.off >= len(r.data) {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(p) {
		n = len(p)
	}
	if r.off+n > len(r.data) {
		n = len(r.data) - r.off
	}
	copy(p, r.data[r.off:r.off+n])
	r.off += n
	return n, nil
}

func frame(t *testing.T, payload any) []byte {
	t.Helper()
	data, err := encodeMessage(payload)
	if err != nil {
		t.Fatalf("encodeMessage() error = %v", err)
	}
	return data
}

func TestEncodeMessage(t *testing.T) {
	data := frame(t, map[string]string{"method": "hello"})

	body := []byte(`{"method":"hello"}`)
	want := fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
	if string(data) != want {
		t.Errorf("encodeMessage() = %q, want %q", data, want)
	}
}

func TestDecoder_RoundTripArbitraryChunks(t *testing.T) {
	payloads := []map[string]any{
		{"jsonrpc": "2.0", "id": float64(1), "method": "simple"},
		{"jsonrpc": "2.0", "id": float64(2), "result": "unicode: héllo → 世界"},
		{"jsonrpc": "2.0", "method": "notify", "params": map[string]any{"deep": []any{"a", float64(42)}}},
	}

	var stream []byte
	for _, p := range payloads {
		stream = append(stream, frame(t, p)...)
	}

	for _, chunk := range []int{1, 2, 3, 7, 16, 64, len(stream)} {
		t.Run(fmt.Sprintf("chunk=%d", chunk), func(t *testing.T) {
			dec := NewDecoder(&chunkReader{data: stream, chunk: chunk})

			for i, want := range payloads {
				msg, err := dec.Next()
				if err != nil {
					t.Fatalf("Next() #%d error = %v", i, err)
				}
				var got map[string]any
				if err := json.Unmarshal(msg, &got); err != nil {
					t.Fatalf("Next() #%d returned invalid JSON: %v", i, err)
				}
				if fmt.Sprint(got) != fmt.Sprint(want) {
					t.Errorf("Next() #%d = %v, want %v", i, got, want)
				}
			}

			if _, err := dec.Next(); err != io.EOF {
				t.Errorf("Next() after stream end = %v, want io.EOF", err)
			}
		})
	}
}

func TestDecoder_WaitsForFullBody(t *testing.T) {
	full := frame(t, map[string]string{"method": "later"})

	r, w := io.Pipe()
	dec := NewDecoder(r)

	// Write the header and half the body, then the rest.
	go func() {
		half := len(full) - 5
		w.Write(full[:half])
		w.Write(full[half:])
		w.Close()
	}()

	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !bytes.Contains(msg, []byte("later")) {
		t.Errorf("Next() = %s, want body containing %q", msg, "later")
	}
}

func TestDecoder_ResyncAfterMalformedHeader(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
	}{
		{"missing content-length", "Content-Type: application/json\r\n\r\n"},
		{"unparsable length", "Content-Length: twelve\r\n\r\n"},
		{"negative length", "Content-Length: -4\r\n\r\n"},
		{"garbage header", "!!!! not a header\r\n\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := append([]byte(tt.prefix), frame(t, map[string]string{"method": "survivor"})...)
			dec := NewDecoder(bytes.NewReader(stream))

			_, err := dec.Next()
			var framingErr *FramingError
			if !errors.As(err, &framingErr) {
				t.Fatalf("Next() error = %v, want *FramingError", err)
			}

			msg, err := dec.Next()
			if err != nil {
				t.Fatalf("Next() after resync error = %v", err)
			}
			if !bytes.Contains(msg, []byte("survivor")) {
				t.Errorf("Next() after resync = %s, want the following message", msg)
			}
		})
	}
}

func TestDecoder_InvalidJSONBody(t *testing.T) {
	bad := []byte("Content-Length: 5\r\n\r\n{oops")
	stream := append(bad, frame(t, map[string]string{"method": "ok"})...)
	dec := NewDecoder(bytes.NewReader(stream))

	_, err := dec.Next()
	var framingErr *FramingError
	if !errors.As(err, &framingErr) {
		t.Fatalf("Next() error = %v, want *FramingError", err)
	}

	msg, err := dec.Next()
	if err != nil {
		t.Fatalf("Next() after invalid body error = %v", err)
	}
	if !bytes.Contains(msg, []byte("ok")) {
		t.Errorf("Next() = %s, want the following message", msg)
	}
}

func TestDecoder_TruncatedStream(t *testing.T) {
	full := frame(t, map[string]string{"method": "cut"})
	dec := NewDecoder(bytes.NewReader(full[:len(full)-3]))

	if _, err := dec.Next(); err != io.ErrUnexpectedEOF {
		t.Errorf("Next() on truncated stream = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestParseContentLength(t *testing.T) {
	tests := []struct {
		header  string
		want    int
		wantErr bool
	}{
		{"Content-Length: 42", 42, false},
		{"content-length: 7", 7, false},
		{"Content-Type: application/json\r\nContent-Length: 10", 10, false},
		{"Content-Length:   99  ", 99, false},
		{"Content-Type: application/json", 0, true},
		{"Content-Length: abc", 0, true},
		{"no colon here", 0, true},
	}

	for _, tt := range tests {
		got, err := parseContentLength(tt.header)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseContentLength(%q) error = %v, wantErr %v", tt.header, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("parseContentLength(%q) = %d, want %d", tt.header, got, tt.want)
		}
	}
}
