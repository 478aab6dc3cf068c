// Package gallery lists the most recent images in a storage folder and
// resolves a temporary link for each of them.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"camtrap/internal/models"
	"camtrap/internal/storage"
)

// NoRecencyFilter is the daysBack value at and above which no cutoff is
// applied.
const NoRecencyFilter = 365

var ErrInvalidQuery = errors.New("invalid image query")

var imageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

type Service struct {
	backend         storage.Backend
	linkConcurrency int
	now             func() time.Time
	logger          zerolog.Logger
}

// NewService resolves links with at most linkConcurrency calls in flight;
// zero or less means one call per image.
func NewService(backend storage.Backend, linkConcurrency int, logger zerolog.Logger) *Service {
	return &Service{
		backend:         backend,
		linkConcurrency: linkConcurrency,
		now:             time.Now,
		logger:          logger,
	}
}

// ListRecentImages returns up to maxCount images from path, newest first.
// Images whose link cannot be resolved are left out.
func (s *Service) ListRecentImages(ctx context.Context, path string, maxCount, daysBack int) ([]models.ResolvedImage, error) {
	if maxCount <= 0 {
		return nil, fmt.Errorf("%w: max count must be positive, got %d", ErrInvalidQuery, maxCount)
	}
	if daysBack < 1 {
		return nil, fmt.Errorf("%w: days back must be at least 1, got %d", ErrInvalidQuery, daysBack)
	}

	entries, err := s.backend.ListFolder(ctx, path)
	if err != nil {
		return nil, err
	}

	images := selectRecent(entries, maxCount, daysBack, s.now())
	s.logger.Debug().
		Str("path", path).
		Int("listed", len(entries)).
		Int("selected", len(images)).
		Msg("folder listed")

	return s.resolve(ctx, images), nil
}

// FolderExists reports whether path can be described by the backend. Any
// failure reads as false.
func (s *Service) FolderExists(ctx context.Context, path string) bool {
	if _, err := s.backend.GetMetadata(ctx, path); err != nil {
		s.logger.Debug().Err(err).Str("path", path).Msg("folder not accessible")
		return false
	}
	return true
}

func selectRecent(entries []models.StorageEntry, maxCount, daysBack int, now time.Time) []models.StorageEntry {
	var cutoff time.Time
	if daysBack < NoRecencyFilter {
		cutoff = now.Add(-time.Duration(daysBack) * 24 * time.Hour)
	}

	selected := make([]models.StorageEntry, 0, len(entries))
	for _, e := range entries {
		if !IsImageName(e.Name) {
			continue
		}
		if !cutoff.IsZero() && e.Modified.Before(cutoff) {
			continue
		}
		selected = append(selected, e)
	}

	slices.SortStableFunc(selected, func(a, b models.StorageEntry) int {
		return b.Modified.Compare(a.Modified)
	})

	if len(selected) > maxCount {
		selected = selected[:maxCount]
	}
	return selected
}

func (s *Service) resolve(ctx context.Context, entries []models.StorageEntry) []models.ResolvedImage {
	slots := make([]*models.ResolvedImage, len(entries))

	var g errgroup.Group
	if s.linkConcurrency > 0 {
		g.SetLimit(s.linkConcurrency)
	}
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			link, err := s.backend.GetTemporaryLink(ctx, e.Path)
			if err != nil {
				s.logger.Warn().Err(err).Str("path", e.Path).Msg("temporary link failed, skipping image")
				return nil
			}
			slots[i] = &models.ResolvedImage{
				ID:       e.ID,
				Name:     e.Name,
				URL:      link.URL,
				Path:     e.Path,
				Modified: e.Modified,
				Size:     e.Size,
			}
			return nil
		})
	}
	_ = g.Wait()

	images := make([]models.ResolvedImage, 0, len(slots))
	for _, img := range slots {
		if img != nil {
			images = append(images, *img)
		}
	}
	return images
}

// IsImageName reports whether name has one of the gallery's image
// extensions, ignoring case.
func IsImageName(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range imageExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
