package linkcache

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"camtrap/internal/models"
	"camtrap/internal/storage"
)

// ResolveFunc issues a fresh link for path.
type ResolveFunc func(ctx context.Context, path string) (models.TemporaryLink, error)

// Resolver serves links from a Cache and resolves misses once per path no
// matter how many callers ask at the same time.
type Resolver struct {
	cache       Cache
	staleBefore time.Duration
	group       singleflight.Group
	now         func() time.Time
	logger      zerolog.Logger
}

// NewResolver treats a cached link as a miss once it is within staleBefore
// of its expiry.
func NewResolver(cache Cache, staleBefore time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		cache:       cache,
		staleBefore: staleBefore,
		now:         time.Now,
		logger:      logger,
	}
}

func (r *Resolver) Cache() Cache {
	return r.cache
}

// GetOrResolve returns the cached link for path or resolves a new one. The
// shared resolve runs detached from any single caller, so a caller that
// gives up does not fail the others waiting on the same path.
func (r *Resolver) GetOrResolve(ctx context.Context, path string, resolve ResolveFunc) (models.TemporaryLink, error) {
	if link, ok := r.lookup(ctx, path); ok {
		return link, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(path, func() (any, error) {
		if link, ok := r.lookup(detached, path); ok {
			return link, nil
		}
		link, err := resolve(detached, path)
		if err != nil {
			return models.TemporaryLink{}, err
		}
		if err := r.cache.Set(detached, path, link); err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("cache link failed")
		}
		return link, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.TemporaryLink{}, res.Err
		}
		return res.Val.(models.TemporaryLink), nil
	case <-ctx.Done():
		return models.TemporaryLink{}, ctx.Err()
	}
}

func (r *Resolver) lookup(ctx context.Context, path string) (models.TemporaryLink, bool) {
	link, ok, err := r.cache.Get(ctx, path)
	if err != nil {
		r.logger.Warn().Err(err).Str("path", path).Msg("read cached link failed")
		return models.TemporaryLink{}, false
	}
	if !ok || link.Expired(r.now(), r.staleBefore) {
		return models.TemporaryLink{}, false
	}
	return link, true
}

// Backend decorates a storage.Backend so GetTemporaryLink goes through the
// resolver. Listing and metadata calls pass straight through.
type Backend struct {
	storage.Backend
	resolver *Resolver
}

func Wrap(backend storage.Backend, resolver *Resolver) *Backend {
	return &Backend{Backend: backend, resolver: resolver}
}

func (b *Backend) GetTemporaryLink(ctx context.Context, path string) (models.TemporaryLink, error) {
	return b.resolver.GetOrResolve(ctx, path, b.Backend.GetTemporaryLink)
}
