package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"camtrap/internal/media/sniffer"
	"camtrap/internal/middleware"
	"camtrap/internal/storage"
)

// MediaRaw streams the bytes of a signed storage path. The whole fetch,
// including the body copy, is bounded by the per-image load timeout.
func (h HandlerSet) MediaRaw(c *gin.Context) {
	path := c.GetString(middleware.ContextSignedPath)

	ctx := c.Request.Context()
	if timeout := h.cfg.Gallery.ImageLoadTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	link, err := h.links.GetTemporaryLink(ctx, path)
	if err != nil {
		h.respondMediaError(c, path, err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		h.respondMediaError(c, path, err)
		return
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		h.respondMediaError(c, path, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.log.Warn().
			Str("path", path).
			Int("upstream_status", resp.StatusCode).
			Msg("media fetch rejected")
		c.JSON(http.StatusBadGateway, gin.H{"error": "upstream_status_" + strconv.Itoa(resp.StatusCode)})
		return
	}

	detected, head, err := sniffer.Detect(resp.Body)
	if errors.Is(err, sniffer.ErrUnknownType) {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "unsupported_media_type"})
		return
	}
	if err != nil {
		h.respondMediaError(c, path, err)
		return
	}
	if declared := sniffer.MimeTypeFromHTTP(resp.Header); declared != "" && declared != detected.MIME {
		h.log.Debug().
			Str("path", path).
			Str("declared", declared).
			Str("detected", detected.MIME).
			Msg("media type mismatch")
	}

	c.DataFromReader(
		http.StatusOK,
		resp.ContentLength,
		detected.MIME,
		io.MultiReader(bytes.NewReader(head), resp.Body),
		map[string]string{"Cache-Control": "private, max-age=300"},
	)
}

func (h HandlerSet) respondMediaError(c *gin.Context, path string, err error) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn().Str("path", path).Msg("media fetch timed out")
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "image_load_timeout"})
	case storage.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "media_not_found"})
	default:
		h.log.Error().Err(err).Str("path", path).Msg("media fetch failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "media_fetch_failed"})
	}
}
