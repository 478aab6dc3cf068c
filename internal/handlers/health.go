package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type healthResponse struct {
	Status      string            `json:"status"`
	Checks      map[string]string `json:"checks"`
	Storage     string            `json:"storage"`
	Environment string            `json:"environment"`
}

func (h HandlerSet) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "error"
			status = "degraded"
			h.log.Error().Err(err).Str("check", name).Msg("health check failed")
			continue
		}
		checks[name] = "ok"
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:      status,
		Checks:      checks,
		Storage:     h.cfg.Storage.Backend,
		Environment: h.cfg.Environment,
	})
}
