package providers

import (
	"context"
	"fmt"

	"github.com/realsaraf/blooom/internal/config"
)

// FromConfig builds the provider selected by cfg. It returns nil, nil when
// archiving is disabled.
func FromConfig(ctx context.Context, cfg config.ArchiveConfig) (Provider, error) {
	switch cfg.Provider {
	case "", config.ArchiveNone:
		return nil, nil
	case config.ArchiveLocal:
		return NewLocal(cfg.LocalPath), nil
	case config.ArchiveS3:
		return NewS3(ctx, S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
		})
	case config.ArchiveGCS:
		return NewGCS(ctx, cfg.Bucket, cfg.CredentialsFile)
	case config.ArchiveAzure:
		return NewAzure(cfg.Bucket, cfg.ConnectionString)
	case config.ArchiveB2:
		return NewB2(ctx, cfg.Bucket, cfg.AccountID, cfg.ApplicationKey)
	default:
		return nil, fmt.Errorf("unknown archive provider %q", cfg.Provider)
	}
}
