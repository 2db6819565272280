package lsp

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxBodySize caps declared body lengths. A header claiming more than this is
// treated as malformed and resynchronized past.
const maxBodySize = 16 << 20

const headerTerminator = "\r\n\r\n"

// encodeMessage serializes payload to JSON and prepends the Content-Length
// header block, returning the complete frame as a single byte slice so it can
// be written atomically.
func encodeMessage(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(body) + 32)
	fmt.Fprintf(&buf, "Content-Length: %d%s", len(body), headerTerminator)
	buf.Write(body)
	return buf.Bytes(), nil
}

// Decoder splits a continuous byte stream into complete JSON messages.
// It maintains a growing buffer and only emits a message once the declared
// header plus body bytes are fully present, regardless of how the underlying
// reader chunks its data.
//
// A Decoder is a lazy, non-restartable sequence tied to one server process:
// call Next repeatedly until it returns io.EOF.
type Decoder struct {
	r   io.Reader
	buf []byte
}

// NewDecoder creates a decoder reading frames from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Next returns the next complete message body. It blocks until a full frame
// is available. A *FramingError means the offending prefix was discarded and
// the stream is still usable; call Next again to resume. io.EOF means the
// stream ended cleanly between frames.
func (d *Decoder) Next() (json.RawMessage, error) {
	for {
		if msg, err, ok := d.decodeBuffered(); ok {
			return msg, err
		}

		chunk := make([]byte, 4096)
		n, err := d.r.Read(chunk)
		if n > 0 {
			d.buf = append(d.buf, chunk[:n]...)
			continue
		}
		if err != nil {
			if err == io.EOF && len(d.buf) > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// decodeBuffered attempts to decode one message from the buffer. The third
// return value reports whether a result (message or framing error) is ready;
// false means more bytes are needed.
func (d *Decoder) decodeBuffered() (json.RawMessage, error, bool) {
	term := bytes.Index(d.buf, []byte(headerTerminator))
	if term < 0 {
		return nil, nil, false
	}

	header := string(d.buf[:term])
	length, err := parseContentLength(header)
	if err != nil {
		// Discard through the terminator and resynchronize.
		d.buf = d.buf[term+len(headerTerminator):]
		return nil, &FramingError{Detail: err.Error()}, true
	}

	bodyStart := term + len(headerTerminator)
	if len(d.buf) < bodyStart+length {
		return nil, nil, false
	}

	body := make([]byte, length)
	copy(body, d.buf[bodyStart:bodyStart+length])
	d.buf = d.buf[bodyStart+length:]

	if !json.Valid(body) {
		return nil, &FramingError{Detail: "body is not valid JSON"}, true
	}

	return body, nil, true
}

// parseContentLength extracts the declared body length from a header block.
func parseContentLength(header string) (int, error) {
	for _, line := range strings.Split(header, "\r\n") {
		name, value, found := strings.Cut(line, ":")
		if !found {
			return 0, fmt.Errorf("header line %q has no colon", line)
		}
		if !strings.EqualFold(strings.TrimSpace(name), "content-length") {
			continue // Content-Type and friends
		}
		length, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("invalid Content-Length %q", strings.TrimSpace(value))
		}
		if length < 0 || length > maxBodySize {
			return 0, fmt.Errorf("Content-Length %d out of range", length)
		}
		return length, nil
	}
	return 0, fmt.Errorf("missing Content-Length header")
}
