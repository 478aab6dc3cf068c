package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"camtrap/internal/config"
	"camtrap/internal/models"
	"camtrap/internal/repository"
	"camtrap/internal/service"
	"camtrap/internal/tasks"
)

func (h HandlerSet) AdminPurgeLinks(c *gin.Context) {
	if h.linkCache == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "link_cache_unavailable"})
		return
	}
	if err := h.linkCache.Purge(c.Request.Context()); err != nil {
		h.log.Error().Err(err).Msg("purge link cache failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purge_failed"})
		return
	}

	// The worker keeps its own cache unless links are shared through redis.
	resp := gin.H{"purged": true}
	if h.queue != nil && h.cfg.LinkCache.Backend != config.LinkCacheRedis {
		id, err := h.queue.Enqueue(c.Request.Context(), tasks.TypePurgeLinks)
		if err != nil {
			h.log.Error().Err(err).Msg("enqueue purge links failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
			return
		}
		resp["taskId"] = id
	}
	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) AdminWarmSummaries(c *gin.Context) {
	if h.queue == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "queue_unavailable"})
		return
	}
	id, err := h.queue.Enqueue(c.Request.Context(), tasks.TypeWarmSummaries)
	if err != nil {
		h.log.Error().Err(err).Msg("enqueue warm summaries failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue_failed"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"taskId": id,
		"type":   tasks.TypeWarmSummaries,
	})
}

type userStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h HandlerSet) AdminSetUserStatus(c *gin.Context) {
	var req userStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id := c.Param("id")
	err := h.auth.SetUserStatus(c.Request.Context(), id, models.UserStatus(req.Status))
	switch {
	case err == nil:
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, repository.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	default:
		h.log.Error().Err(err).Str("user_id", id).Msg("update user status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update_failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     id,
		"status": req.Status,
	})
}
