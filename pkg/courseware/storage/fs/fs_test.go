package fs

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(Config{BaseDir: t.TempDir(), URLPrefix: "http://localhost:8080/files"})
	require.NoError(t, err)
	return b
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPutAndStat(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	err := b.Put(ctx, "courses/x/assets/ab/video.mp4", strings.NewReader("0123456789"), "video/mp4")
	require.NoError(t, err)

	meta, err := b.Stat(ctx, "courses/x/assets/ab/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(10), meta.Size)
	assert.NotEmpty(t, meta.ContentType)
}

func TestStatMissing(t *testing.T) {
	b := newTestBackend(t)
	_, err := b.Stat(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSignedReadURL(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Put(ctx, "courses/x/v.mp4", strings.NewReader("data"), ""))

	u, err := b.SignedReadURL(ctx, "courses/x/v.mp4", "Lecture 1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/files/download/courses/x/v.mp4?filename=Lecture+1.mp4", u)

	_, err = b.SignedReadURL(ctx, "missing", "")
	assert.Error(t, err)
}

func TestSignedReadURLRequiresPrefix(t *testing.T) {
	b, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	require.NoError(t, b.Put(context.Background(), "k", strings.NewReader("data"), ""))

	_, err = b.SignedReadURL(context.Background(), "k", "")
	assert.Error(t, err)
}

func TestDeletePrunesEmptyDirectories(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, "a/b/c/file.bin", strings.NewReader("data"), ""))
	require.NoError(t, b.Delete(ctx, "a/b/c/file.bin"))

	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.True(t, os.IsNotExist(err), "empty parent directories should be pruned")

	assert.Error(t, b.Delete(ctx, "a/b/c/file.bin"))
}

func TestKeyTraversalIsContained(t *testing.T) {
	dir := t.TempDir()
	b, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	require.NoError(t, b.Put(context.Background(), "../escape.bin", strings.NewReader("data"), ""))

	_, err = os.Stat(filepath.Join(dir, "escape.bin"))
	assert.NoError(t, err, "traversal segments must resolve inside the base directory")
}
