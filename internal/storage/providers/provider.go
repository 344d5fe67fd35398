// Package providers implements the remote stores finished recordings can
// be mirrored to.
package providers

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// Provider is a remote object store. Remote paths use forward slashes.
type Provider interface {
	Name() string
	Upload(ctx context.Context, localPath, remotePath string) error
	Download(ctx context.Context, remotePath, localPath string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, remotePath string) error
}

var (
	errLocalPathRequired  = errors.New("local path is required")
	errRemotePathRequired = errors.New("remote path is required")
)

func checkPaths(localPath, remotePath string) error {
	if localPath == "" {
		return errLocalPathRequired
	}
	if remotePath == "" {
		return errRemotePathRequired
	}
	return nil
}

// ObjectKey joins prefix and the file's base name into a remote key.
func ObjectKey(prefix, localPath string) string {
	name := filepath.Base(localPath)
	prefix = strings.Trim(filepath.ToSlash(prefix), "/")
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// contentType guesses a MIME type from the remote key.
func contentType(remotePath string) string {
	switch strings.ToLower(path.Ext(remotePath)) {
	case ".webm":
		return "video/webm"
	case "":
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(path.Ext(remotePath)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func wrap(provider, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s %s: %w", provider, op, err)
}
