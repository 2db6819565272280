package issue

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Cache stores fetched issues as JSON documents on disk. Each entry holds the
// raw API payloads plus a meta block recording when it was written.
type Cache struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewCache builds a cache rooted at dir. Entries older than ttl are treated
// as missing; a non-positive ttl keeps entries forever.
func NewCache(dir string, ttl time.Duration) *Cache {
	return &Cache{dir: dir, ttl: ttl, now: time.Now}
}

// path keeps one file per issue, namespaced by owner and repo.
func (c *Cache) path(ref Ref) string {
	return filepath.Join(c.dir, ref.Owner, ref.Repo, fmt.Sprintf("issue-%d.json", ref.Number))
}

// Get returns the cached document for ref when present and fresh.
func (c *Cache) Get(ref Ref) ([]byte, bool) {
	raw, err := os.ReadFile(c.path(ref))
	if err != nil {
		return nil, false
	}
	if !gjson.ValidBytes(raw) {
		return nil, false
	}
	if c.ttl > 0 {
		at, err := time.Parse(time.RFC3339, gjson.GetBytes(raw, "meta.fetchedAt").String())
		if err != nil || c.now().Sub(at) > c.ttl {
			return nil, false
		}
	}
	return raw, true
}

// Put writes the document for ref, stamping meta.fetchedAt, and returns the
// stamped document.
func (c *Cache) Put(ref Ref, raw []byte) ([]byte, error) {
	raw, err := sjson.SetBytes(raw, "meta.fetchedAt", c.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	path := c.path(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return nil, err
	}
	return raw, nil
}

// assembleRaw combines the issue and comments API payloads into the single
// document format the cache stores.
func assembleRaw(ref Ref, issueJSON, commentsJSON []byte) ([]byte, error) {
	raw, err := sjson.SetRawBytes([]byte(`{}`), "issue", issueJSON)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", ref, err)
	}
	raw, err = sjson.SetRawBytes(raw, "comments", commentsJSON)
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", ref, err)
	}
	raw, err = sjson.SetBytes(raw, "meta.ref", ref.String())
	if err != nil {
		return nil, fmt.Errorf("assemble %s: %w", ref, err)
	}
	return raw, nil
}
