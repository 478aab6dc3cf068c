// Package linkcache keeps temporary storage links keyed by storage path so
// repeated gallery loads and image proxy hits do not re-issue them.
package linkcache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"camtrap/internal/config"
	"camtrap/internal/models"
)

// Cache stores links by storage path. Implementations must drop or hide
// links whose ExpiresAt has passed.
type Cache interface {
	Get(ctx context.Context, path string) (models.TemporaryLink, bool, error)
	Set(ctx context.Context, path string, link models.TemporaryLink) error
	Delete(ctx context.Context, path string) error
	// Purge removes every link.
	Purge(ctx context.Context) error
	// Sweep removes expired links and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// New builds the cache selected by cfg.Backend. The redis client is only
// required for the redis backend.
func New(cfg config.LinkCacheConfig, client *redis.Client) (Cache, error) {
	switch cfg.Backend {
	case "", config.LinkCacheMemory:
		return NewMemory(cfg.Size, maxLinkLifetime), nil
	case config.LinkCacheRedis:
		if client == nil {
			return nil, fmt.Errorf("linkcache: redis backend needs a redis client")
		}
		return NewRedis(client), nil
	default:
		return nil, fmt.Errorf("linkcache: unknown backend %q", cfg.Backend)
	}
}

// maxLinkLifetime bounds how long any backend keeps a link valid; memory
// entries are never held longer than this even if ExpiresAt says otherwise.
const maxLinkLifetime = 24 * time.Hour
