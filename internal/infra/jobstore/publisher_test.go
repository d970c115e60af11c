package jobstore

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisher_PublishReplaces(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPublisher(dir, "https://feeds.example.org/f/")
	require.NoError(t, err)

	require.NoError(t, p.Publish("abc.xml", []byte("<rss>one</rss>")))
	require.NoError(t, p.Publish("abc.xml", []byte("<rss>two</rss>")))

	got, err := p.Read("abc.xml")
	require.NoError(t, err)
	assert.Equal(t, "<rss>two</rss>", string(got))
	assert.True(t, p.Exists("abc.xml"))
	assert.Equal(t, "https://feeds.example.org/f/abc.xml", p.URL("abc.xml"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublisher_RejectsPaths(t *testing.T) {
	p, err := NewPublisher(t.TempDir(), "https://feeds.example.org")
	require.NoError(t, err)

	for _, name := range []string{"../x.xml", "a/b.xml", ".x.xml", ""} {
		assert.Error(t, p.Publish(name, []byte("x")), name)
	}
}

func TestPublisher_LastAccess(t *testing.T) {
	dir := t.TempDir()
	p, err := NewPublisher(dir, "https://feeds.example.org")
	require.NoError(t, err)

	_, ok, err := p.LastAccess("missing.xml")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Publish("abc.xml", []byte("x")))
	accessed := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "abc.xml"), accessed, accessed))

	got, ok, err := p.LastAccess("abc.xml")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(accessed), "got %v", got)
}

func TestPublisher_PublishKeepsAccessTime(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("access time is only tracked on linux")
	}
	dir := t.TempDir()
	p, err := NewPublisher(dir, "https://feeds.example.org")
	require.NoError(t, err)

	require.NoError(t, p.Publish("abc.xml", []byte("one")))
	accessed := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "abc.xml"), accessed, accessed))

	require.NoError(t, p.Publish("abc.xml", []byte("two")))
	got, ok, err := p.LastAccess("abc.xml")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(accessed), "refresh must not count as a read, got %v", got)
}

func TestPublisher_Remove(t *testing.T) {
	p, err := NewPublisher(t.TempDir(), "https://feeds.example.org")
	require.NoError(t, err)

	require.NoError(t, p.Publish("abc.json", []byte("{}")))
	require.NoError(t, p.Remove("abc.json"))
	require.NoError(t, p.Remove("abc.json"))
	assert.False(t, p.Exists("abc.json"))
}
