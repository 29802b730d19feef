package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "%PDF-1.4")
	writeFile(t, filepath.Join(root, "b.TXT"), "hello")
	writeFile(t, filepath.Join(root, "c.zip"), "PK")
	writeFile(t, filepath.Join(root, "sub", "d.docx"), "PK")
	writeFile(t, filepath.Join(root, ".hidden", "e.pdf"), "%PDF")
	writeFile(t, filepath.Join(root, ".f.md"), "# hidden")

	files, stats, err := Discover(context.Background(), root, nil, true)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f.Path)
		paths = append(paths, rel)
		assert.Empty(t, f.Err)
	}
	assert.Equal(t, []string{"a.pdf", "b.TXT", filepath.Join("sub", "d.docx")}, paths)
	assert.Equal(t, "text/plain", files[1].MediaType)
	assert.Equal(t, "txt", files[1].Ext)
	assert.Equal(t, int64(5), files[1].Size)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Zero(t, stats.Failed)

	files, _, err = Discover(context.Background(), root, []string{".PDF"}, false)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, filepath.Join(root, ".hidden", "e.pdf"), files[0].Path)
}

func TestDiscoverErrors(t *testing.T) {
	_, _, err := Discover(context.Background(), " ", nil, false)
	require.Error(t, err)

	files, stats, err := Discover(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, false)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.NotEmpty(t, files[0].Err)
	assert.Equal(t, uint32(1), stats.Failed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = Discover(ctx, t.TempDir(), nil, false)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	writeFile(t, path, "# Title")

	data, mt, err := ReadFile(path, 0)
	require.NoError(t, err)
	assert.Equal(t, "# Title", string(data))
	assert.Equal(t, "text/markdown", mt)

	_, _, err = ReadFile(path, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "limit")

	_, _, err = ReadFile(dir, 0)
	require.Error(t, err)
}

func TestIsHidden(t *testing.T) {
	assert.True(t, IsHidden("/a/.git"))
	assert.False(t, IsHidden("/a/b.pdf"))
	assert.False(t, IsHidden("."))
}

func TestWatchEmitsNewFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "%PDF")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for watch event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.pdf"), next())

	writeFile(t, filepath.Join(root, "ignored.zip"), "PK")
	writeFile(t, filepath.Join(root, "new.txt"), "hello")
	assert.Equal(t, filepath.Join(root, "new.txt"), next())

	cancel()
	for range events {
	}
}

func TestWatchRequiresRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{})
	require.Error(t, err)
}
