package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camtrap/internal/linkcache"
	"camtrap/internal/models"
	"camtrap/internal/tasks"
)

const warmEvery15m = "0 */15 * * * *"

type fakeQueue struct {
	mu    sync.Mutex
	types []string
	err   error
}

func (q *fakeQueue) Enqueue(_ context.Context, taskType string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.types = append(q.types, taskType)
	return "1-0", q.err
}

func (q *fakeQueue) enqueued() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.types...)
}

func TestSweepLinksSweepsLocallyAndAsksWorker(t *testing.T) {
	ctx := context.Background()
	cache := linkcache.NewMemory(8, time.Hour)
	require.NoError(t, cache.Set(ctx, "/a.jpg", models.TemporaryLink{URL: "u", ExpiresAt: time.Now().Add(50 * time.Millisecond)}))

	q := &fakeQueue{}
	s := NewScheduler(q, cache, Options{SweepInterval: time.Second, WarmSchedule: warmEvery15m}, zerolog.Nop())

	time.Sleep(60 * time.Millisecond)
	s.sweepLinks()
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, []string{tasks.TypeSweepLinks}, q.enqueued())
}

func TestSweepLinksSkipsWorkerForSharedCache(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, linkcache.NewMemory(8, time.Hour), Options{SweepInterval: time.Second, SharedLinks: true}, zerolog.Nop())

	s.sweepLinks()
	assert.Empty(t, q.enqueued())
}

func TestEnqueueWarm(t *testing.T) {
	q := &fakeQueue{}
	s := NewScheduler(q, linkcache.NewMemory(8, time.Hour), Options{WarmSchedule: warmEvery15m, SharedLinks: true}, zerolog.Nop())

	s.enqueueWarm()
	assert.Equal(t, []string{tasks.TypeWarmSummaries}, q.enqueued())

	q.err = errors.New("redis down")
	assert.NotPanics(t, s.enqueueWarm)
}

func TestStartSchedulesWarmOnlyForSharedCache(t *testing.T) {
	links := linkcache.NewMemory(8, time.Hour)

	cases := []struct {
		name    string
		queue   Enqueuer
		opts    Options
		entries int
	}{
		{name: "process local cache", queue: &fakeQueue{}, opts: Options{SweepInterval: 30 * time.Minute, WarmSchedule: warmEvery15m}, entries: 1},
		{name: "shared cache", queue: &fakeQueue{}, opts: Options{SweepInterval: 30 * time.Minute, WarmSchedule: warmEvery15m, SharedLinks: true}, entries: 2},
		{name: "no queue", queue: nil, opts: Options{SweepInterval: 30 * time.Minute, WarmSchedule: warmEvery15m, SharedLinks: true}, entries: 1},
		{name: "no warm schedule", queue: &fakeQueue{}, opts: Options{SweepInterval: 30 * time.Minute, SharedLinks: true}, entries: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewScheduler(tc.queue, links, tc.opts, zerolog.Nop())
			require.NoError(t, s.Start())
			defer s.Stop()
			assert.Len(t, s.cron.Entries(), tc.entries)
		})
	}
}

func TestStartValidatesWarmSchedule(t *testing.T) {
	s := NewScheduler(&fakeQueue{}, linkcache.NewMemory(8, time.Hour), Options{
		SweepInterval: 30 * time.Minute,
		WarmSchedule:  "not a schedule",
		SharedLinks:   true,
	}, zerolog.Nop())
	assert.Error(t, s.Start())
}
