// Package storage hands finalized recordings to the filesystem and, when
// configured, mirrors them to a remote archive.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/realsaraf/blooom/internal/logging"
	"github.com/realsaraf/blooom/internal/storage/providers"
)

var log = logging.L("storage")

var (
	// ErrExists is returned when the destination file is already present.
	ErrExists = errors.New("storage: file already exists")
	// ErrInvalidName is returned for names that are empty or leave the
	// target directory.
	ErrInvalidName = errors.New("storage: invalid file name")
)

// DefaultLowSpaceBytes triggers a warning when the output volume has less
// free space than this after a write.
const DefaultLowSpaceBytes = 1 << 30

// FileName builds the default recording name for t, for example
// recording-2024-05-01T12-30-45-123Z.webm.
func FileName(t time.Time, ext string) string {
	stamp := t.UTC().Format("2006-01-02T15:04:05.000Z")
	stamp = strings.NewReplacer(":", "-", ".", "-").Replace(stamp)
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "recording-" + stamp
	}
	return "recording-" + stamp + "." + ext
}

// Persister writes payloads to disk.
type Persister struct {
	// LowSpaceBytes is the free-space threshold for the post-write warning.
	// Zero uses DefaultLowSpaceBytes; negative disables the check.
	LowSpaceBytes int64

	freeSpace func(ctx context.Context, dir string) (uint64, error)
}

// NewPersister returns a Persister with the default low-space threshold.
func NewPersister() *Persister {
	return &Persister{}
}

// Persist writes payload to directory/name and returns the absolute path.
// The directory is created when missing. An existing file is never
// overwritten; ErrExists is returned instead. On failure no partial file is
// left behind.
func (p *Persister) Persist(ctx context.Context, payload []byte, name, directory string) (string, error) {
	if strings.TrimSpace(directory) == "" {
		return "", fmt.Errorf("storage: output directory is empty")
	}
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dir, err := filepath.Abs(directory)
	if err != nil {
		return "", fmt.Errorf("storage: resolve directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create directory: %w", err)
	}
	dest, err := providers.ContainedPath(dir, name)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	start := time.Now()
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrExists, dest)
		}
		return "", fmt.Errorf("storage: create file: %w", err)
	}

	if err := writeAll(f, payload); err != nil {
		f.Close()
		os.Remove(dest)
		return "", fmt.Errorf("storage: write %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("storage: close %s: %w", dest, err)
	}

	log.Info("recording saved",
		logging.KeyPath, dest,
		"bytes", len(payload),
		logging.KeyDurationMs, time.Since(start).Milliseconds())
	p.checkFreeSpace(ctx, dir)
	return dest, nil
}

func writeAll(f *os.File, payload []byte) error {
	if _, err := f.Write(payload); err != nil {
		return err
	}
	return f.Sync()
}

func (p *Persister) checkFreeSpace(ctx context.Context, dir string) {
	threshold := p.LowSpaceBytes
	if threshold < 0 {
		return
	}
	if threshold == 0 {
		threshold = DefaultLowSpaceBytes
	}
	free := p.freeSpace
	if free == nil {
		free = diskFree
	}
	avail, err := free(ctx, dir)
	if err != nil {
		log.Debug("free space check failed", logging.KeyPath, dir, logging.KeyError, err)
		return
	}
	if avail < uint64(threshold) {
		log.Warn("output volume is low on space",
			logging.KeyPath, dir,
			"freeMB", avail/(1<<20))
	}
}

func diskFree(ctx context.Context, dir string) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, dir)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}
