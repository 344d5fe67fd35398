package providers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/Backblaze/blazer/b2"
)

// B2 stores recordings in a Backblaze B2 bucket.
type B2 struct {
	bucket *b2.Bucket
}

// NewB2 authorizes against B2 and resolves the bucket.
func NewB2(ctx context.Context, bucket, accountID, applicationKey string) (*B2, error) {
	if bucket == "" {
		return nil, errors.New("b2 bucket is required")
	}
	client, err := b2.NewClient(ctx, accountID, applicationKey)
	if err != nil {
		return nil, wrap("b2", "authorize", err)
	}
	bkt, err := client.Bucket(ctx, bucket)
	if err != nil {
		return nil, wrap("b2", "bucket", err)
	}
	return &B2{bucket: bkt}, nil
}

func (b *B2) Name() string { return "b2" }

func (b *B2) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := b.bucket.Object(remotePath).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return wrap(b.Name(), "upload", err)
	}
	return wrap(b.Name(), "upload", w.Close())
}

func (b *B2) Download(ctx context.Context, remotePath, localPath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	r := b.bucket.Object(remotePath).NewReader(ctx)
	_, err = io.Copy(f, r)
	r.Close()
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return wrap(b.Name(), "download", err)
}

func (b *B2) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	iter := b.bucket.List(ctx, b2.ListPrefix(prefix))
	for iter.Next() {
		names = append(names, iter.Object().Name())
	}
	if err := iter.Err(); err != nil {
		return nil, wrap(b.Name(), "list", err)
	}
	return names, nil
}

func (b *B2) Delete(ctx context.Context, remotePath string) error {
	if remotePath == "" {
		return errRemotePathRequired
	}
	return wrap(b.Name(), "delete", b.bucket.Object(remotePath).Delete(ctx))
}
