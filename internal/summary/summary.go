// Package summary computes per-location recent activity in small paced
// batches so a full pass never floods the storage backend.
package summary

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"camtrap/internal/config"
	"camtrap/internal/models"
)

// Lister is the part of the gallery service the aggregator depends on.
type Lister interface {
	ListRecentImages(ctx context.Context, path string, maxCount, daysBack int) ([]models.ResolvedImage, error)
}

type Aggregator struct {
	lister     Lister
	batchSize  int
	batchDelay time.Duration
	maxImages  int
	daysBack   int
	sleep      func(time.Duration)
	logger     zerolog.Logger
}

func NewAggregator(lister Lister, cfg config.SummaryConfig, logger zerolog.Logger) *Aggregator {
	a := &Aggregator{
		lister:     lister,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		maxImages:  cfg.MaxImages,
		daysBack:   cfg.DaysBack,
		sleep:      time.Sleep,
		logger:     logger,
	}
	if a.batchSize <= 0 {
		a.batchSize = 3
	}
	if a.maxImages <= 0 {
		a.maxImages = 10
	}
	if a.daysBack <= 0 {
		a.daysBack = 7
	}
	return a
}

// Summarize returns a summary for every location. A location whose images
// cannot be listed gets a zero summary. The pass runs to completion even if
// ctx is cancelled.
func (a *Aggregator) Summarize(ctx context.Context, locations []models.Location) map[int]models.LocationSummary {
	ctx = context.WithoutCancel(ctx)
	out := make(map[int]models.LocationSummary, len(locations))

	for start := 0; start < len(locations); start += a.batchSize {
		if start > 0 && a.batchDelay > 0 {
			a.sleep(a.batchDelay)
		}

		end := min(start+a.batchSize, len(locations))
		batch := locations[start:end]
		results := make([]models.LocationSummary, len(batch))

		var wg sync.WaitGroup
		for i, loc := range batch {
			i, loc := i, loc
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i] = a.summarizeOne(ctx, loc)
			}()
		}
		wg.Wait()

		for i, loc := range batch {
			out[loc.ID] = results[i]
		}
	}

	return out
}

func (a *Aggregator) summarizeOne(ctx context.Context, loc models.Location) models.LocationSummary {
	images, err := a.lister.ListRecentImages(ctx, loc.StoragePath, a.maxImages, a.daysBack)
	if err != nil {
		a.logger.Info().Err(err).Int("location_id", loc.ID).Str("path", loc.StoragePath).Msg("location summary unavailable")
		return models.LocationSummary{}
	}

	summary := models.LocationSummary{RecentImageCount: len(images)}
	if len(images) > 0 {
		last := images[0].Modified
		summary.LastActivity = &last
	}
	return summary
}
