package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"camtrap/internal/config"
	"camtrap/internal/gallery"
	"camtrap/internal/linkcache"
	"camtrap/internal/locations"
	"camtrap/internal/middleware"
	"camtrap/internal/models"
	"camtrap/internal/security"
	"camtrap/internal/service"
)

const mediaRawPath = "/api/v1/media/raw"

type AuthService interface {
	middleware.TokenAuthenticator
	Register(ctx context.Context, input service.RegisterInput) (service.AuthResult, error)
	Login(ctx context.Context, input service.LoginInput) (service.AuthResult, error)
	Logout(ctx context.Context, claims *security.AccessClaims) error
	SetUserStatus(ctx context.Context, id string, status models.UserStatus) error
}

type GalleryService interface {
	ListRecentImages(ctx context.Context, path string, maxCount, daysBack int) ([]models.ResolvedImage, error)
	FolderExists(ctx context.Context, path string) bool
}

type Summarizer interface {
	Summarize(ctx context.Context, locations []models.Location) map[int]models.LocationSummary
}

type LinkSource interface {
	GetTemporaryLink(ctx context.Context, path string) (models.TemporaryLink, error)
}

type TaskQueue interface {
	Enqueue(ctx context.Context, taskType string) (string, error)
}

// Dependencies are the collaborators the API handlers serve from. Queue and
// HealthChecks may be nil.
type Dependencies struct {
	Config     *config.AppConfig
	Logger     zerolog.Logger
	Auth       AuthService
	Locations  *locations.Registry
	Gallery    GalleryService
	Summaries  Summarizer
	Links      LinkSource
	LinkCache  linkcache.Cache
	Queue      TaskQueue
	Signer     *security.URLSigner
	Inflight   *gallery.Inflight
	HTTPClient *http.Client

	// HealthChecks are named dependency checks reported by /healthz.
	HealthChecks map[string]func(ctx context.Context) error
}

type HandlerSet struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	auth       AuthService
	locations  *locations.Registry
	gallery    GalleryService
	summaries  Summarizer
	links      LinkSource
	linkCache  linkcache.Cache
	queue      TaskQueue
	signer     *security.URLSigner
	inflight   *gallery.Inflight
	httpClient *http.Client
	checks     map[string]func(ctx context.Context) error
	thresholds models.ActivityThresholds
}

func NewHandlerSet(deps Dependencies) HandlerSet {
	inflight := deps.Inflight
	if inflight == nil {
		inflight = gallery.NewInflight()
	}
	httpClient := deps.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return HandlerSet{
		log:        deps.Logger,
		cfg:        deps.Config,
		auth:       deps.Auth,
		locations:  deps.Locations,
		gallery:    deps.Gallery,
		summaries:  deps.Summaries,
		links:      deps.Links,
		linkCache:  deps.LinkCache,
		queue:      deps.Queue,
		signer:     deps.Signer,
		inflight:   inflight,
		httpClient: httpClient,
		checks:     deps.HealthChecks,
		thresholds: models.ActivityThresholds{
			High:   deps.Config.Activity.High,
			Medium: deps.Config.Activity.Medium,
		},
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		auth.POST("/register", h.RegisterUser)
		auth.POST("/login", h.Login)

		protected := v1.Group("/auth")
		protected.Use(middleware.Auth(h.auth))
		protected.GET("/me", h.Me)
		protected.POST("/logout", h.Logout)
	}

	monitoring := v1.Group("")
	monitoring.Use(middleware.Auth(h.auth))
	monitoring.GET("/locations", h.ListLocations)
	monitoring.GET("/locations/summary", h.LocationSummaries)
	monitoring.GET("/locations/:id", h.GetLocation)
	monitoring.GET("/locations/:id/images", h.LocationImages)
	monitoring.GET("/map", h.MapView)
	monitoring.GET("/gallery/options", h.GalleryOptions)

	media := v1.Group("/media")
	media.Use(middleware.SignedMedia(h.signer))
	media.GET("/raw", h.MediaRaw)

	admin := v1.Group("/admin")
	admin.Use(
		middleware.Auth(h.auth),
		middleware.RequireRoles(models.UserRoleAdmin),
	)
	admin.POST("/links/purge", h.AdminPurgeLinks)
	admin.POST("/summaries/warm", h.AdminWarmSummaries)
	admin.PUT("/users/:id/status", h.AdminSetUserStatus)
}
