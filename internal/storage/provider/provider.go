// Package provider builds the storage.Backend selected by configuration.
package provider

import (
	"context"
	"fmt"

	"camtrap/internal/config"
	"camtrap/internal/storage"
	"camtrap/internal/storage/dropbox"
	"camtrap/internal/storage/objectstore"
)

func New(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case config.StorageDropbox:
		// A missing token surfaces as a BackendError on the first call.
		return dropbox.NewClient(cfg.Dropbox.AccessToken, cfg.Dropbox.APIURL, cfg.Dropbox.Timeout), nil
	case config.StorageMinIO:
		store, err := objectstore.NewObjectStore(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", cfg.Backend)
	}
}
