package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"courier-relay/config"
	"courier-relay/internal/events"
	"courier-relay/internal/handler"
	"courier-relay/internal/metrics"
	redisx "courier-relay/internal/redis"
	"courier-relay/internal/registry"
	"courier-relay/internal/repository"
	"courier-relay/internal/router"
	"courier-relay/internal/server"
	"courier-relay/internal/services"
	"courier-relay/internal/storage"
	"courier-relay/pkg/database"
	"courier-relay/pkg/logger"
)

func main() {
	cfg := config.LoadConfig()
	l := logger.New(cfg.App.Mode)

	ctx := context.Background()

	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	rdb, err := redisx.NewClient(ctx, redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	identities := repository.NewIdentityRepository(pool)
	// Directory reads sit on the send path; a Redis lookaside keeps
	// steady-state fan-out off Postgres.
	directory := repository.NewCachedDirectory(
		repository.NewDeviceDirectory(pool),
		redisx.NewDirectoryCache(rdb, 0),
	)
	store := repository.NewConversationStore(pool)

	reg := registry.New()
	q := redisx.NewQueue(rdb, cfg.Relay.QueueCap)
	presence := redisx.NewPresenceStore(rdb, 0)

	limitCfg := redisx.DefaultRateLimitConfig()
	if cfg.Relay.MessageRate > 0 {
		limitCfg.MessageLimit = cfg.Relay.MessageRate
		limitCfg.MessageWindow = time.Minute
	}
	limiter := redisx.NewRateLimiter(rdb, limitCfg)

	bus := events.NewRedisBus(rdb, l)
	defer bus.Close()

	m := metrics.New()
	authSvc := services.NewAuthService(identities, directory, cfg)

	r := router.New(router.Deps{
		Directory:       directory,
		Store:           store,
		Registry:        reg,
		Queue:           q,
		Verifier:        authSvc,
		Presence:        presence,
		Limiter:         limiter,
		Bus:             bus,
		Metrics:         m,
		Log:             l,
		IdentifyTimeout: cfg.Relay.IdentifyTimeout,
	})

	// Wakes from other relay instances. The queue is the unit of
	// truth either way; missing a wake only delays delivery until the
	// next identify.
	if err := bus.SubscribeWakes(ctx, r.HandleWake); err != nil {
		l.Errorf("Wake subscription unavailable, relying on identify-time drains: %s", err)
	}

	handlers := &server.Handlers{
		Auth:         handler.NewAuthHandler(authSvc),
		Device:       handler.NewDeviceHandler(services.NewDirectoryService(directory, presence)),
		Conversation: handler.NewConversationHandler(services.NewConversationService(store)),
		Attachment:   handler.NewAttachmentHandler(services.NewAttachmentService(blobStore(ctx, cfg, l))),
		WS:           server.NewWebSocketHandler(r, presence, m, l),
	}

	srv := server.New(cfg, l)
	srv.SetupRoutes(handlers, authSvc, limiter, m, func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		return nil
	})

	if err := srv.Start(); err != nil {
		l.Errorf("Server exited with error: %s", err)
	}
}

func blobStore(ctx context.Context, cfg *config.Config, l *logger.Logger) services.BlobStore {
	if cfg.S3.Bucket == "" {
		l.Infof("No S3 bucket configured, storing attachments in memory")
		return storage.NewMemory()
	}
	client, err := storage.NewClient(ctx, storage.S3Config{
		Region:     cfg.S3.Region,
		Bucket:     cfg.S3.Bucket,
		AccessKey:  cfg.S3.AccessKey,
		SecretKey:  cfg.S3.SecretKey,
		Endpoint:   cfg.S3.Endpoint,
		PresignTTL: cfg.S3.PresignTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialise S3 storage: %v", err)
	}
	return client
}
