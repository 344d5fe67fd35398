package providers

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realsaraf/blooom/internal/config"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		prefix, local, want string
	}{
		{"", "/tmp/recording-a.webm", "recording-a.webm"},
		{"recordings", "/tmp/recording-a.webm", "recordings/recording-a.webm"},
		{"/recordings/2026/", "/tmp/x/recording-a.webm", "recordings/2026/recording-a.webm"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.local))
	}
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "video/webm", contentType("a/b.webm"))
	assert.Equal(t, "video/webm", contentType("a/b.WEBM"))
	assert.Equal(t, "application/octet-stream", contentType("noext"))
}

func TestContainedPathRejectsTraversal(t *testing.T) {
	base := t.TempDir()

	got, err := ContainedPath(base, "recordings/a.webm")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "recordings", "a.webm"), got)

	_, err = ContainedPath(base, "../escape.webm")
	require.Error(t, err)
	_, err = ContainedPath(base, "a/../../escape.webm")
	require.Error(t, err)
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	srcDir := t.TempDir()
	p := NewLocal(t.TempDir())

	src := filepath.Join(srcDir, "recording-1.webm")
	require.NoError(t, os.WriteFile(src, []byte("webm-bytes"), 0o644))

	require.NoError(t, p.Upload(ctx, src, "recordings/recording-1.webm"))
	require.NoError(t, p.Upload(ctx, src, "recordings/nested/recording-2.webm"))

	keys, err := p.List(ctx, "recordings")
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"recordings/nested/recording-2.webm", "recordings/recording-1.webm"}, keys)

	out := filepath.Join(t.TempDir(), "restored.webm")
	require.NoError(t, p.Download(ctx, "recordings/recording-1.webm", out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "webm-bytes", string(data))

	require.NoError(t, p.Delete(ctx, "recordings/recording-1.webm"))
	require.NoError(t, p.Delete(ctx, "recordings/recording-1.webm"), "deleting a missing object is not an error")
	keys, err = p.List(ctx, "recordings")
	require.NoError(t, err)
	assert.Equal(t, []string{"recordings/nested/recording-2.webm"}, keys)
}

func TestLocalListMissingPrefix(t *testing.T) {
	p := NewLocal(t.TempDir())
	keys, err := p.List(context.Background(), "nothing-here")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestLocalRejectsEmptyPaths(t *testing.T) {
	p := NewLocal(t.TempDir())
	ctx := context.Background()
	assert.ErrorIs(t, p.Upload(ctx, "", "x"), errLocalPathRequired)
	assert.ErrorIs(t, p.Upload(ctx, "x", ""), errRemotePathRequired)
	assert.ErrorIs(t, p.Delete(ctx, ""), errRemotePathRequired)
}

func TestLocalUploadHonoursCancellation(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.webm")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dest := t.TempDir()
	p := NewLocal(dest)
	require.ErrorIs(t, p.Upload(ctx, src, "a.webm"), context.Canceled)

	entries, err := os.ReadDir(dest)
	require.NoError(t, err)
	assert.Empty(t, entries, "no partial file may be left behind")
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()

	p, err := FromConfig(ctx, config.ArchiveConfig{Provider: config.ArchiveNone})
	require.NoError(t, err)
	assert.Nil(t, p)

	dir := t.TempDir()
	p, err = FromConfig(ctx, config.ArchiveConfig{Provider: config.ArchiveLocal, LocalPath: dir})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "local", p.Name())

	_, err = FromConfig(ctx, config.ArchiveConfig{Provider: "ftp"})
	require.Error(t, err)

	_, err = FromConfig(ctx, config.ArchiveConfig{Provider: config.ArchiveS3})
	require.Error(t, err, "s3 without a bucket must fail")
}
