package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Producer appends task messages to a redis stream.
type Producer struct {
	client *redis.Client
	stream string
}

func NewProducer(client *redis.Client, stream string) *Producer {
	return &Producer{client: client, stream: stream}
}

// Enqueue adds a task of the given type and returns the message id.
func (p *Producer) Enqueue(ctx context.Context, taskType string) (string, error) {
	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{"type": taskType},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return id, nil
}
