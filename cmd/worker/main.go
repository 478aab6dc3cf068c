package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"camtrap/internal/cache"
	"camtrap/internal/config"
	"camtrap/internal/gallery"
	"camtrap/internal/linkcache"
	"camtrap/internal/locations"
	"camtrap/internal/log"
	"camtrap/internal/queue"
	"camtrap/internal/storage/provider"
	"camtrap/internal/summary"
	"camtrap/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment, cfg.Logging.Level).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	if cfg.Storage.Backend == config.StorageDropbox && cfg.Storage.Dropbox.AccessToken == "" {
		logger.Warn().Msg("storage.dropbox.accesstoken is empty, storage calls will fail")
	}
	backend, err := provider.New(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage backend")
	}

	if cfg.LinkCache.Backend != config.LinkCacheRedis {
		logger.Info().Str("backend", cfg.LinkCache.Backend).Msg("link cache is process local, summary warming is not scheduled")
	}
	links, err := linkcache.New(cfg.LinkCache, client)
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

	processor := tasks.NewProcessor(aggregator, registry, links, logger)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Fatal().Err(err).Msg("consumer stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")
	time.Sleep(500 * time.Millisecond)
}
