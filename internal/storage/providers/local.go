package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ContainedPath resolves untrustedPath under basePath and rejects anything
// that would escape it.
func ContainedPath(basePath, untrustedPath string) (string, error) {
	absBase, err := filepath.Abs(basePath)
	if err != nil {
		return "", fmt.Errorf("resolve base path: %w", err)
	}
	absJoined, err := filepath.Abs(filepath.Join(absBase, filepath.FromSlash(untrustedPath)))
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !strings.HasPrefix(absJoined, absBase+string(filepath.Separator)) && absJoined != absBase {
		return "", fmt.Errorf("path traversal detected: %q resolves outside base %q", untrustedPath, absBase)
	}
	return absJoined, nil
}

// Local mirrors recordings to another directory, typically a mounted
// network share or a synced folder.
type Local struct {
	BasePath string
}

// NewLocal creates a Local provider rooted at basePath.
func NewLocal(basePath string) *Local {
	return &Local{BasePath: filepath.Clean(basePath)}
}

func (p *Local) Name() string { return "local" }

func (p *Local) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	dest, err := ContainedPath(p.BasePath, remotePath)
	if err != nil {
		return err
	}
	return wrap(p.Name(), "upload", copyFile(ctx, localPath, dest))
}

func (p *Local) Download(ctx context.Context, remotePath, localPath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	src, err := ContainedPath(p.BasePath, remotePath)
	if err != nil {
		return err
	}
	return wrap(p.Name(), "download", copyFile(ctx, src, localPath))
}

func (p *Local) List(ctx context.Context, prefix string) ([]string, error) {
	root := p.BasePath
	if prefix != "" {
		var err error
		if root, err = ContainedPath(p.BasePath, prefix); err != nil {
			return nil, err
		}
	}
	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}

	var results []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if entry.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(p.BasePath, path)
		if err != nil {
			return err
		}
		results = append(results, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, wrap(p.Name(), "list", err)
	}
	return results, nil
}

func (p *Local) Delete(ctx context.Context, remotePath string) error {
	if remotePath == "" {
		return errRemotePathRequired
	}
	target, err := ContainedPath(p.BasePath, remotePath)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, os.ErrNotExist) {
		return wrap(p.Name(), "delete", err)
	}
	return nil
}

// copyFile copies src to dest through a temporary file so a reader never
// sees a half-written recording. Modification time is preserved.
func copyFile(ctx context.Context, src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = io.Copy(tmp, &ctxReader{ctx: ctx, r: in})
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	if err := os.Chtimes(tmpName, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("preserve mtime: %w", err)
	}
	return os.Rename(tmpName, dest)
}

// ctxReader stops a long copy when ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
