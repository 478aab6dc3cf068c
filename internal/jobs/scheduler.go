package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"camtrap/internal/linkcache"
	"camtrap/internal/tasks"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string) (string, error)
}

type Options struct {
	SweepInterval time.Duration
	WarmSchedule  string
	// SharedLinks is set when the link cache lives in redis and the worker
	// fills the same cache the api reads.
	SharedLinks bool
}

type Scheduler struct {
	cron  *cron.Cron
	queue Enqueuer
	links linkcache.Cache
	opts  Options
	log   zerolog.Logger
}

// NewScheduler sweeps this process's link cache and asks the worker to
// sweep its own. Summary warming is only scheduled for a shared cache,
// since a worker-local cache is never read by the api. queue may be nil,
// which leaves only the local sweep.
func NewScheduler(queue Enqueuer, links linkcache.Cache, opts Options, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:  cron.New(cron.WithSeconds()),
		queue: queue,
		links: links,
		opts:  opts,
		log:   log,
	}
}

func (s *Scheduler) Start() error {
	if s.links != nil && s.opts.SweepInterval > 0 {
		if _, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.opts.SweepInterval), s.sweepLinks); err != nil {
			return fmt.Errorf("schedule sweep: %w", err)
		}
	}
	if s.warmEnabled() {
		if _, err := s.cron.AddFunc(s.opts.WarmSchedule, s.enqueueWarm); err != nil {
			return fmt.Errorf("schedule warm: %w", err)
		}
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits up to 5s for running jobs.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler jobs still running at shutdown")
	}
}

func (s *Scheduler) warmEnabled() bool {
	return s.queue != nil && s.opts.SharedLinks && s.opts.WarmSchedule != ""
}

func (s *Scheduler) sweepLinks() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	removed, err := s.links.Sweep(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep links failed")
	} else {
		s.log.Debug().Int("removed", removed).Msg("link cache swept")
	}

	if s.queue != nil && !s.opts.SharedLinks {
		s.enqueue(ctx, tasks.TypeSweepLinks)
	}
}

func (s *Scheduler) enqueueWarm() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.enqueue(ctx, tasks.TypeWarmSummaries)
}

func (s *Scheduler) enqueue(ctx context.Context, taskType string) {
	if _, err := s.queue.Enqueue(ctx, taskType); err != nil {
		s.log.Error().Err(err).Str("type", taskType).Msg("enqueue task failed")
	}
}
