package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"camtrap/internal/cache"
	"camtrap/internal/config"
	"camtrap/internal/database"
	"camtrap/internal/gallery"
	"camtrap/internal/handlers"
	"camtrap/internal/jobs"
	"camtrap/internal/linkcache"
	"camtrap/internal/locations"
	"camtrap/internal/log"
	"camtrap/internal/queue"
	"camtrap/internal/repository"
	"camtrap/internal/security"
	"camtrap/internal/server"
	"camtrap/internal/service"
	"camtrap/internal/storage/provider"
	"camtrap/internal/summary"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level)

	ctx := context.Background()

	if err := database.Migrate(cfg.Postgres.DSN, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to migrate postgres")
	}

	dbPool, err := database.NewPostgresPool(ctx, cfg.Postgres)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	if cfg.Storage.Backend == config.StorageDropbox && cfg.Storage.Dropbox.AccessToken == "" {
		logger.Warn().Msg("storage.dropbox.accesstoken is empty, storage calls will fail")
	}
	backend, err := provider.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage backend")
	}

	links, err := linkcache.New(cfg.LinkCache, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init link cache")
	}
	cachedBackend := linkcache.Wrap(backend, linkcache.NewResolver(links, cfg.LinkCache.StaleBefore, logger))

	registry, err := locations.NewRegistry(cfg.Locations)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid locations")
	}

	galleryService := gallery.NewService(cachedBackend, cfg.Gallery.LinkConcurrency, logger)
	aggregator := summary.NewAggregator(galleryService, cfg.Summary, logger)

	authService := service.NewAuthService(repository.NewUserRepository(dbPool), redisClient, cfg.Security, logger)
	if err := authService.EnsureBootstrapUser(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to create bootstrap user")
	}

	producer := queue.NewProducer(redisClient, cfg.Worker.Stream)

	handlerSet := handlers.NewHandlerSet(handlers.Dependencies{
		Config:     cfg,
		Logger:     logger,
		Auth:       authService,
		Locations:  registry,
		Gallery:    galleryService,
		Summaries:  aggregator,
		Links:      cachedBackend,
		LinkCache:  links,
		Queue:      producer,
		Signer:     security.NewURLSigner(cfg.Security.URLSigningSecret, cfg.Gallery.ProxyURLTTL),
		HTTPClient: &http.Client{Timeout: cfg.Gallery.ImageLoadTimeout},
		HealthChecks: map[string]func(context.Context) error{
			"postgres": dbPool.Ping,
			"redis": func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		},
	})
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(producer, links, jobs.Options{
		SweepInterval: cfg.LinkCache.SweepInterval,
		WarmSchedule:  cfg.Summary.WarmSchedule,
		SharedLinks:   cfg.LinkCache.Backend == config.LinkCacheRedis,
	}, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, scheduler, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, scheduler *jobs.Scheduler, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	scheduler.Stop()

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
