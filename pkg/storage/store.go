package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/psicometria/bat7-api/pkg/config"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("object not found")

// Store keeps generated report files.
type Store interface {
	Save(ctx context.Context, key string, data []byte, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// Open builds the store selected by cfg.StorageDriver.
func Open(ctx context.Context, cfg config.ReportsConfig) (Store, error) {
	switch cfg.StorageDriver {
	case "", config.StorageDriverLocal:
		return NewLocalStorage(cfg.StorageDir)
	case config.StorageDriverS3:
		return NewS3Storage(ctx, S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			PathStyle: cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown report storage driver %q", cfg.StorageDriver)
	}
}
