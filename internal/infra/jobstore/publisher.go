package jobstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Publisher writes feed files into the public feed directory.
type Publisher struct {
	dir     string
	baseURL string
}

// NewPublisher creates a Publisher for dir, whose files are served under
// baseURL.
func NewPublisher(dir, baseURL string) (*Publisher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create feed dir: %w", err)
	}
	return &Publisher{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// URL returns the public URL of filename.
func (p *Publisher) URL(filename string) string {
	return p.baseURL + "/" + filename
}

func (p *Publisher) path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", fmt.Errorf("invalid feed filename %q", filename)
	}
	return filepath.Join(p.dir, filename), nil
}

// Publish atomically replaces filename with data. The access time of the
// replaced file is carried over, so only reads keep a feed from being
// purged.
func (p *Publisher) Publish(filename string, data []byte) error {
	path, err := p.path(filename)
	if err != nil {
		return err
	}
	var prevAccess time.Time
	if info, err := os.Stat(path); err == nil {
		prevAccess = accessTime(path, info)
	}
	if err := WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("publish %s: %w", filename, err)
	}
	if !prevAccess.IsZero() {
		_ = os.Chtimes(path, prevAccess, time.Now())
	}
	return nil
}

// Exists reports whether filename has been published.
func (p *Publisher) Exists(filename string) bool {
	path, err := p.path(filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Read returns the published bytes of filename.
func (p *Publisher) Read(filename string) ([]byte, error) {
	path, err := p.path(filename)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// Remove deletes filename. A missing file is not an error.
func (p *Publisher) Remove(filename string) error {
	path, err := p.path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove feed %s: %w", filename, err)
	}
	return nil
}

// LastAccess returns the last access time of filename. ok is false when
// the file does not exist.
func (p *Publisher) LastAccess(filename string) (t time.Time, ok bool, err error) {
	path, err := p.path(filename)
	if err != nil {
		return time.Time{}, false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stat feed %s: %w", filename, err)
	}
	return accessTime(path, info), true, nil
}
