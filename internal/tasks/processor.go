package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"camtrap/internal/linkcache"
	"camtrap/internal/models"
)

const (
	TypeWarmSummaries = "warm-summaries"
	TypeSweepLinks    = "sweep-links"
	TypePurgeLinks    = "purge-links"
)

type Summarizer interface {
	Summarize(ctx context.Context, locations []models.Location) map[int]models.LocationSummary
}

type LocationLister interface {
	List() []models.Location
}

type Processor struct {
	summaries Summarizer
	locations LocationLister
	links     linkcache.Cache
	logger    zerolog.Logger
}

type TaskPayload struct {
	Type string `json:"type"`
}

func NewProcessor(summaries Summarizer, locations LocationLister, links linkcache.Cache, logger zerolog.Logger) *Processor {
	return &Processor{
		summaries: summaries,
		locations: locations,
		links:     links,
		logger:    logger,
	}
}

func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	var payload TaskPayload
	if err := decodePayload(msg.Values, &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return p.Run(ctx, payload.Type)
}

// Run executes one task by type. Unknown types are logged and dropped.
func (p *Processor) Run(ctx context.Context, taskType string) error {
	switch taskType {
	case TypeWarmSummaries:
		return p.handleWarmSummaries(ctx)
	case TypeSweepLinks:
		return p.handleSweepLinks(ctx)
	case TypePurgeLinks:
		return p.handlePurgeLinks(ctx)
	default:
		p.logger.Warn().Str("type", taskType).Msg("unknown task type")
		return nil
	}
}

func decodePayload(values map[string]interface{}, out *TaskPayload) error {
	bytes, err := json.Marshal(values)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, out)
}

// handleWarmSummaries runs a full aggregation pass; the links it resolves
// land in the shared cache.
func (p *Processor) handleWarmSummaries(ctx context.Context) error {
	locations := p.locations.List()
	summaries := p.summaries.Summarize(ctx, locations)

	active := 0
	for _, s := range summaries {
		if s.RecentImageCount > 0 {
			active++
		}
	}
	p.logger.Info().
		Int("locations", len(locations)).
		Int("active", active).
		Msg("summaries warmed")
	return nil
}

func (p *Processor) handleSweepLinks(ctx context.Context) error {
	removed, err := p.links.Sweep(ctx)
	if err != nil {
		return fmt.Errorf("sweep links: %w", err)
	}
	p.logger.Info().Int("removed", removed).Msg("expired links swept")
	return nil
}

func (p *Processor) handlePurgeLinks(ctx context.Context) error {
	if err := p.links.Purge(ctx); err != nil {
		return fmt.Errorf("purge links: %w", err)
	}
	p.logger.Info().Msg("link cache purged")
	return nil
}
