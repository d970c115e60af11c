package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"pagefeed/internal/usecase/fetch"
)

// cacheEntry is the JSON sidecar of a cached response. The body lives in a
// separate blob next to it.
type cacheEntry struct {
	URL          string      `json:"url"`
	Status       int         `json:"status"`
	Header       http.Header `json:"headers"`
	ETag         string      `json:"etag,omitempty"`
	LastModified string      `json:"last_modified,omitempty"`
	FinalURL     string      `json:"final_url"`
	FetchedAt    time.Time   `json:"fetched_at"`

	body []byte
}

func newCacheEntry(resp *fetch.Response, now time.Time) *cacheEntry {
	return &cacheEntry{
		Status:       resp.Status,
		Header:       resp.Header.Clone(),
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		FinalURL:     resp.FinalURL,
		FetchedAt:    now,
		body:         resp.Body,
	}
}

func (e *cacheEntry) fresh(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.FetchedAt) <= ttl
}

func (e *cacheEntry) response() *fetch.Response {
	return &fetch.Response{
		OK:        e.Status >= 200 && e.Status < 300,
		Status:    e.Status,
		Header:    e.Header.Clone(),
		Body:      e.body,
		FinalURL:  e.FinalURL,
		FromCache: true,
	}
}

// diskCache stores one blob and one sidecar per URL, named by the SHA-256 of
// the URL. Entries are idempotent snapshots so no locking is done; the last
// writer wins.
type diskCache struct {
	dir string
}

func newDiskCache(dir string) (*diskCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &diskCache{dir: dir}, nil
}

func (d *diskCache) paths(key string) (meta, body string) {
	sum := sha256.Sum256([]byte(key))
	base := filepath.Join(d.dir, hex.EncodeToString(sum[:]))
	return base + ".json", base + ".body"
}

// load returns the entry for key, or nil when it is missing or unreadable.
func (d *diskCache) load(key string) *cacheEntry {
	metaPath, bodyPath := d.paths(key)

	raw, err := os.ReadFile(metaPath)
	if err != nil {
		return nil
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.URL != key {
		return nil
	}
	body, err := os.ReadFile(bodyPath)
	if err != nil {
		return nil
	}
	entry.body = body
	return &entry
}

// store writes the body blob first and the sidecar last, each through a
// temporary file and rename, so a readable sidecar always has its body.
func (d *diskCache) store(key string, entry *cacheEntry) error {
	metaPath, bodyPath := d.paths(key)
	entry.URL = key

	if err := writeFileAtomic(bodyPath, entry.body); err != nil {
		return err
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	return writeFileAtomic(metaPath, raw)
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
