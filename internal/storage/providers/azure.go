package providers

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// Azure stores recordings in an Azure Blob Storage container.
type Azure struct {
	container string
	client    *azblob.Client
}

// NewAzure builds a client from a storage account connection string.
func NewAzure(container, connectionString string) (*Azure, error) {
	if container == "" {
		return nil, errors.New("azure container is required")
	}
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, wrap("azure", "client", err)
	}
	return &Azure{container: container, client: client}, nil
}

func (a *Azure) Name() string { return "azure" }

func (a *Azure) Upload(ctx context.Context, localPath, remotePath string) error {
	if err := checkPaths(localPath, remotePath); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = a.client.UploadFile(ctx, a.container, remotePath, f, nil)
	return wrap(a.Name(), "upload", err)
}

func (a *Azure) Download(ctx context.Context, remotePath, localPath string) error {
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
	_, err = a.client.DownloadFile(ctx, a.container, remotePath, f, nil)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return wrap(a.Name(), "download", err)
}

func (a *Azure) List(ctx context.Context, prefix string) ([]string, error) {
	opts := &azblob.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, wrap(a.Name(), "list", err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				names = append(names, *item.Name)
			}
		}
	}
	return names, nil
}

func (a *Azure) Delete(ctx context.Context, remotePath string) error {
	if remotePath == "" {
		return errRemotePathRequired
	}
	_, err := a.client.DeleteBlob(ctx, a.container, remotePath, nil)
	return wrap(a.Name(), "delete", err)
}
