package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"camtrap/internal/gallery"
	"camtrap/internal/locations"
	"camtrap/internal/middleware"
	"camtrap/internal/models"
	"camtrap/internal/storage"
)

type locationView struct {
	models.Location
	Summary  *models.LocationSummary `json:"summary,omitempty"`
	Label    string                  `json:"label,omitempty"`
	Activity models.ActivityLevel    `json:"activity"`
}

type imageView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	ProxyURL string `json:"proxyUrl"`
	Path     string `json:"path"`
	Modified string `json:"modified"`
	Size     int64  `json:"size"`
}

type imagesQuery struct {
	Count int `json:"count"`
	Days  int `json:"days"`
}

func (h HandlerSet) ListLocations(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"locations": h.locations.List(),
	})
}

func (h HandlerSet) GetLocation(c *gin.Context) {
	loc, ok := h.lookupLocation(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"location": loc,
	})
}

func (h HandlerSet) LocationSummaries(c *gin.Context) {
	summaries := h.summaries.Summarize(c.Request.Context(), h.locations.List())
	c.JSON(http.StatusOK, gin.H{
		"summaries": summaries,
	})
}

func (h HandlerSet) MapView(c *gin.Context) {
	locs := h.locations.List()
	summaries := h.summaries.Summarize(c.Request.Context(), locs)

	views := make([]locationView, 0, len(locs))
	for _, loc := range locs {
		view := locationView{Location: loc, Activity: models.ActivityUnknown}
		if s, ok := summaries[loc.ID]; ok {
			view.Summary = &s
			view.Label = s.Label()
			view.Activity = h.thresholds.Level(s.RecentImageCount)
		}
		views = append(views, view)
	}

	c.JSON(http.StatusOK, gin.H{
		"center":    []float64{h.cfg.Map.CenterLat, h.cfg.Map.CenterLng},
		"zoom":      h.cfg.Map.Zoom,
		"locations": views,
		"activity":  h.thresholds.Count(summaries),
	})
}

// LocationImages runs the gallery load flow for one location. A newer
// request from the same user cancels this one, which then answers with an
// empty list.
func (h HandlerSet) LocationImages(c *gin.Context) {
	loc, ok := h.lookupLocation(c)
	if !ok {
		return
	}

	query, err := h.parseImagesQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.ClientIP()
	if user, ok := middleware.CurrentUser(c); ok {
		key = user.ID
	}
	ctx, done := h.inflight.Begin(c.Request.Context(), key)
	defer done()

	if !h.gallery.FolderExists(ctx, loc.StoragePath) {
		if gallery.Superseded(ctx) {
			h.respondSuperseded(c, loc, query)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Monitoring location folder not found: %s", loc.StoragePath),
		})
		return
	}

	images, err := h.gallery.ListRecentImages(ctx, loc.StoragePath, query.Count, query.Days)
	if gallery.Superseded(ctx) {
		h.respondSuperseded(c, loc, query)
		return
	}
	if err != nil {
		h.respondGalleryError(c, loc, err)
		return
	}

	views := make([]imageView, 0, len(images))
	for _, img := range images {
		views = append(views, imageView{
			ID:       img.ID,
			Name:     img.Name,
			URL:      img.URL,
			ProxyURL: h.signer.URL(mediaRawPath, img.Path),
			Path:     img.Path,
			Modified: img.Modified.UTC().Format(time.RFC3339),
			Size:     img.Size,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"location": loc,
		"images":   views,
		"activity": h.thresholds.Level(len(images)),
		"query":    query,
	})
}

func (h HandlerSet) GalleryOptions(c *gin.Context) {
	type dateRange struct {
		Days  int    `json:"days"`
		Label string `json:"label"`
	}

	c.JSON(http.StatusOK, gin.H{
		"dateRanges": []dateRange{
			{Days: 1, Label: "Last 24 hours"},
			{Days: 7, Label: "Last 7 days"},
			{Days: 30, Label: "Last 30 days"},
			{Days: 90, Label: "Last 90 days"},
		},
		"imageCounts": []int{5, 10, 20, 50},
		"defaults": imagesQuery{
			Count: h.cfg.Gallery.DefaultCount,
			Days:  h.cfg.Gallery.DefaultDays,
		},
		"maxCount": h.cfg.Gallery.MaxCount,
	})
}

func (h HandlerSet) lookupLocation(c *gin.Context) (models.Location, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
		return models.Location{}, false
	}

	loc, err := h.locations.Get(id)
	if errors.Is(err, locations.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Location not found"})
		return models.Location{}, false
	}
	if err != nil {
		h.log.Error().Err(err).Int("location_id", id).Msg("lookup location failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup_failed"})
		return models.Location{}, false
	}
	return loc, true
}

func (h HandlerSet) parseImagesQuery(c *gin.Context) (imagesQuery, error) {
	query := imagesQuery{
		Count: h.cfg.Gallery.DefaultCount,
		Days:  h.cfg.Gallery.DefaultDays,
	}

	if raw := c.Query("count"); raw != "" {
		count, err := strconv.Atoi(raw)
		if err != nil || count < 1 || count > h.cfg.Gallery.MaxCount {
			return query, fmt.Errorf("count must be between 1 and %d", h.cfg.Gallery.MaxCount)
		}
		query.Count = count
	}
	if raw := c.Query("days"); raw != "" {
		days, err := strconv.Atoi(raw)
		if err != nil || days < 1 || days > gallery.NoRecencyFilter {
			return query, fmt.Errorf("days must be between 1 and %d", gallery.NoRecencyFilter)
		}
		query.Days = days
	}
	return query, nil
}

func (h HandlerSet) respondSuperseded(c *gin.Context, loc models.Location, query imagesQuery) {
	c.JSON(http.StatusOK, gin.H{
		"location":   loc,
		"images":     []imageView{},
		"activity":   h.thresholds.Level(0),
		"query":      query,
		"superseded": true,
	})
}

func (h HandlerSet) respondGalleryError(c *gin.Context, loc models.Location, err error) {
	var backendErr *storage.BackendError
	switch {
	case errors.Is(err, gallery.ErrInvalidQuery):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case storage.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Monitoring location folder not found: %s", loc.StoragePath),
		})
	case errors.As(err, &backendErr):
		h.log.Error().Err(err).Int("location_id", loc.ID).Msg("list images failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": backendErr.Error()})
	default:
		h.log.Error().Err(err).Int("location_id", loc.ID).Msg("list images failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_images_failed"})
	}
}
