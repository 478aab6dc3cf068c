package linkcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"camtrap/internal/models"
)

const keyPrefix = "camtrap:link:"

// Redis shares links between the api and the worker. Keys expire with the
// link, so Sweep has nothing to do.
type Redis struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, now: time.Now}
}

func (r *Redis) Get(ctx context.Context, path string) (models.TemporaryLink, bool, error) {
	raw, err := r.client.Get(ctx, keyPrefix+path).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.TemporaryLink{}, false, nil
	}
	if err != nil {
		return models.TemporaryLink{}, false, fmt.Errorf("get link %s: %w", path, err)
	}

	var link models.TemporaryLink
	if err := json.Unmarshal(raw, &link); err != nil {
		return models.TemporaryLink{}, false, fmt.Errorf("decode link %s: %w", path, err)
	}
	if link.Expired(r.now(), 0) {
		return models.TemporaryLink{}, false, nil
	}
	return link, true, nil
}

func (r *Redis) Set(ctx context.Context, path string, link models.TemporaryLink) error {
	ttl := link.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("encode link %s: %w", path, err)
	}
	if err := r.client.Set(ctx, keyPrefix+path, raw, ttl).Err(); err != nil {
		return fmt.Errorf("set link %s: %w", path, err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, path string) error {
	return r.client.Del(ctx, keyPrefix+path).Err()
}

func (r *Redis) Purge(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, keyPrefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			if err := r.client.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("purge links: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan links: %w", err)
	}
	if len(batch) > 0 {
		if err := r.client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("purge links: %w", err)
		}
	}
	return nil
}

func (r *Redis) Sweep(context.Context) (int, error) {
	return 0, nil
}
