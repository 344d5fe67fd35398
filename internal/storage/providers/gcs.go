package providers

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCS stores recordings in a Google Cloud Storage bucket.
type GCS struct {
	bucket string
	client *storage.Client
}

// NewGCS builds a client from credentialsFile, or from application default
// credentials when it is empty.
func NewGCS(ctx context.Context, bucket, credentialsFile string) (*GCS, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, wrap("gcs", "client", err)
	}
	return &GCS{bucket: bucket, client: client}, nil
}

func (g *GCS) Name() string { return "gcs" }

// Close releases the client's connections.
func (g *GCS) Close() error { return g.client.Close() }

func (g *GCS) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	w := g.client.Bucket(g.bucket).Object(remotePath).NewWriter(ctx)
	w.ContentType = contentType(remotePath)
	if _, err := io.Copy(w, f); err != nil {
		w.Close()
		return wrap(g.Name(), "upload", err)
	}
	return wrap(g.Name(), "upload", w.Close())
}

func (g *GCS) Download(ctx context.Context, remotePath, localPath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	r, err := g.client.Bucket(g.bucket).Object(remotePath).NewReader(ctx)
	if err != nil {
		return wrap(g.Name(), "download", err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	f, err := os.Create(localPath)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return wrap(g.Name(), "download", err)
}

func (g *GCS) List(ctx context.Context, prefix string) ([]string, error) {
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, wrap(g.Name(), "list", err)
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

func (g *GCS) Delete(ctx context.Context, remotePath string) error {
	if remotePath == "" {
		return errRemotePathRequired
	}
	err := g.client.Bucket(g.bucket).Object(remotePath).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil
	}
	return wrap(g.Name(), "delete", err)
}
