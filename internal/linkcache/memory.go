package linkcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"camtrap/internal/models"
)

const defaultMemorySize = 2048

// Memory is a process-local cache bounded by entry count.
type Memory struct {
	lru *expirable.LRU[string, models.TemporaryLink]
	now func() time.Time
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = defaultMemorySize
	}
	return &Memory{
		lru: expirable.NewLRU[string, models.TemporaryLink](size, nil, ttl),
		now: time.Now,
	}
}

func (m *Memory) Get(_ context.Context, path string) (models.TemporaryLink, bool, error) {
	link, ok := m.lru.Get(path)
	if !ok {
		return models.TemporaryLink{}, false, nil
	}
	if link.Expired(m.now(), 0) {
		m.lru.Remove(path)
		return models.TemporaryLink{}, false, nil
	}
	return link, true, nil
}

func (m *Memory) Set(_ context.Context, path string, link models.TemporaryLink) error {
	if link.Expired(m.now(), 0) {
		return nil
	}
	m.lru.Add(path, link)
	return nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.lru.Remove(path)
	return nil
}

func (m *Memory) Purge(_ context.Context) error {
	m.lru.Purge()
	return nil
}

func (m *Memory) Sweep(ctx context.Context) (int, error) {
	now := m.now()
	removed := 0
	for _, key := range m.lru.Keys() {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		link, ok := m.lru.Peek(key)
		if !ok || !link.Expired(now, 0) {
			continue
		}
		if m.lru.Remove(key) {
			removed++
		}
	}
	return removed, nil
}

func (m *Memory) Len() int {
	return m.lru.Len()
}
