package components

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"signalhub/internal/api"
	"signalhub/internal/api/handlers/http/system"
	"signalhub/internal/auth"
	"signalhub/internal/config"
	"signalhub/internal/feed"
	"signalhub/internal/metrics"
	"signalhub/internal/redis"
	"signalhub/internal/service"
	"signalhub/internal/storage/objectstore"
	"signalhub/internal/storage/postgres"
	"signalhub/internal/workers"
	"signalhub/pkg/logger"
)

type Components struct {
	logger     *slog.Logger
	HttpServer *api.Server
	Postgres   *postgres.Postgres
	Redis      *redis.Redis
	WebhookQ   *redis.WebhookQueue
	Broker     *feed.Broker
	Metrics    *metrics.Metrics

	feedPump    *workers.FeedPump
	invalidator *workers.CacheInvalidator
	webhooks    *service.WebhookSender
	workers     sync.WaitGroup
}

func InitComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Components, error) {
	m := metrics.New("signalhub")

	logger.Info("Initializing Postgres")
	storage, err := postgres.NewPostgres(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to init postgres",
			slog.Any("error", err),
		)
		return nil, fmt.Errorf("failed to init postgres: %w", err)
	}

	logger.Info("Initializing Redis")
	redisClient, err := redis.NewRedis(ctx, cfg, logger)
	if err != nil {
		storage.Pool.Close()
		return nil, fmt.Errorf("failed to init redis: %w", err)
	}

	cache := redis.NewReportCache(redisClient, cfg.Redis.CacheTTL)
	webhookQueue := redis.NewWebhookQueue(redisClient.Client, cfg.Webhook.Queue)

	broker := feed.NewBroker(cfg.Feed.Buffer, logger)
	broker.OnDropped(m.FeedDropped.Inc)

	pump := workers.NewFeedPump(postgres.NewListener(storage.Pool, logger), broker, logger).
		OnEvent(func(kind string) { m.FeedEvents.WithLabelValues(kind).Inc() })
	invalidator := workers.NewCacheInvalidator(cache, broker, 4, logger)

	checks := map[string]system.Check{
		"postgres": storage.Pool.Ping,
		"redis":    redisClient.Ping,
	}

	logger.Info("Initializing photo store", slog.String("store", cfg.Photos.Store))
	var store service.PhotoStore
	switch cfg.Photos.Store {
	case "cloudinary":
		store, err = objectstore.NewCloudinary(cfg.Photos, logger)
	default:
		var mc *objectstore.MinIO
		mc, err = objectstore.NewMinIO(ctx, cfg.Photos, logger)
		if err == nil {
			checks["object_storage"] = mc.HealthCheck
			store = mc
		}
	}
	if err != nil {
		storage.Pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("failed to init photo store: %w", err)
	}

	photos := service.NewPhotos(store, cfg.Photos.MaxBytes, logger).
		OnResult(func(result string) { m.PhotoUploads.WithLabelValues(result).Inc() })

	var (
		queue  service.WebhookQueue
		sender *service.WebhookSender
	)
	if !cfg.Webhook.Disabled {
		queue = webhookQueue
		sender = service.NewWebhookSender(logger, cfg.Webhook, webhookQueue).
			OnResult(func(result string) { m.WebhookDelivered.WithLabelValues(result).Inc() })
	}

	reports := service.NewReports(storage.Reports, cache, queue, broker, logger)
	svc := service.NewService(reports, photos)

	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)

	httpServer := api.NewServer(cfg, logger, svc, verifier, m, checks)
	logger.Info("Initialized server")

	return &Components{
		logger:      logger,
		HttpServer:  httpServer,
		Postgres:    storage,
		Redis:       redisClient,
		WebhookQ:    webhookQueue,
		Broker:      broker,
		Metrics:     m,
		feedPump:    pump,
		invalidator: invalidator,
		webhooks:    sender,
	}, nil
}

// StartWorkers runs the background workers until ctx is done.
func (c *Components) StartWorkers(ctx context.Context) {
	run := func(name string, fn func(context.Context)) {
		c.workers.Add(1)
		go func() {
			defer c.workers.Done()
			fn(ctx)
			c.logger.Info("worker stopped", slog.String("worker", name))
		}()
	}

	run("feed_pump", c.feedPump.Run)
	run("cache_invalidator", c.invalidator.Run)
	if c.webhooks != nil {
		run("webhook_sender", c.webhooks.Run)
	}
}

func SetupLogger(env string) *slog.Logger {
	switch env {
	case "local":
		return logger.SetupPrettySlog()
	case "dev":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}),
		)
	case "prod":
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	default:
		return slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level: slog.LevelInfo,
			}),
		)
	}
}

// ShutdownAll waits for workers started with a now cancelled context, then
// closes the broker and connections.
func (c *Components) ShutdownAll() {
	start := time.Now()
	c.logger.Info("Component shutdown started")

	c.workers.Wait()
	c.Broker.Close()

	c.Postgres.Pool.Close()
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.logger.Error("Redis close failed", slog.String("err", err.Error()))
		}
	}

	c.logger.Info("All components stopped",
		slog.Duration("latency", time.Since(start)))
}
