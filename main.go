package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tournament-leaderboard/classify"
	"tournament-leaderboard/config"
	"tournament-leaderboard/handlers"
	"tournament-leaderboard/ingest"
	"tournament-leaderboard/logger"
	"tournament-leaderboard/metrics"
	"tournament-leaderboard/middleware"
	"tournament-leaderboard/models"
	"tournament-leaderboard/profile"
	"tournament-leaderboard/services"
	"tournament-leaderboard/storage"
	"tournament-leaderboard/workers"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Log.ServiceName,
	})
	defer func() { _ = log.Sync() }()
	log.Info("starting", "config", cfg.NonSensitiveString())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal("failed to open storage", "error", err)
	}
	defer func() { _ = store.Close() }()

	m := metrics.New()

	client := profile.NewClient(
		profile.WithBaseURLs(cfg.Profile.UsersBaseURL, cfg.Profile.ThumbnailsBaseURL),
		profile.WithUserAgent(cfg.Profile.UserAgent),
		profile.WithLogger(log),
		profile.WithMetrics(m),
	)
	profiles, stopCache := profile.NewCachedResolver(client, cfg.Profile.AvatarCacheTTL)
	defer stopCache()

	classifier := classify.New(cfg.Tournament.Location)
	defaultEvent := models.EventID(cfg.Tournament.DefaultEvent)

	policy, err := ingest.ParsePolicy(cfg.Tournament.UnmatchedPolicy)
	if err != nil {
		log.Fatal("invalid unmatched policy", "error", err)
	}

	backfill := workers.NewAvatarBackfill(store, profiles, log, m)
	engine := ingest.NewEngine(store, classifier, policy, defaultEvent,
		ingest.WithResolver(profiles, cfg.Tournament.WebhookResolveAttempts),
		ingest.WithAvatarFiller(backfill),
		ingest.WithLogger(log),
		ingest.WithMetrics(m),
	)

	limiter, stopLimiter := middleware.NewRateLimiter(cfg.Server.WebhookRatePerSecond, cfg.Server.WebhookBurst)
	defer stopLimiter()

	app := handlers.NewApp(handlers.Deps{
		Engine:         engine,
		Standings:      services.NewStandingsService(store, classifier, profiles, defaultEvent),
		Admin:          services.NewAdminService(store, profiles, classifier, defaultEvent, log, m),
		Backfill:       backfill,
		Events:         models.EventCatalogue(cfg.Tournament.Events, defaultEvent),
		Limiter:        limiter,
		Logger:         log,
		Metrics:        m,
		AdminToken:     cfg.Server.AdminToken,
		CronSecret:     cfg.Server.CronSecret,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		BodyLimit:      cfg.Server.BodyLimit,
	})

	scheduler, err := workers.NewScheduler(backfill, cfg.Jobs.AvatarBackfillInterval, log)
	if err != nil {
		log.Fatal("failed to start scheduler", "error", err)
	}
	scheduler.Start()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Server.Port)); err != nil {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	log.Info("server running", "port", cfg.Server.Port, "policy", string(policy), "storage", cfg.Storage.Backend)

	<-ctx.Done()
	log.Info("shutting down server")

	if err := scheduler.Shutdown(); err != nil {
		log.Warn("scheduler shutdown failed", "error", err)
	}
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("server shutdown failed", "error", err)
	}
	backfill.Wait()
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	defaultEvent := models.EventID(cfg.Tournament.DefaultEvent)

	if cfg.Storage.Backend == config.StorageBackendPostgres {
		store, err := storage.OpenPostgres(cfg.Storage.DatabaseURL, defaultEvent)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	}

	var blob storage.Blob = &storage.DiskBlob{Path: cfg.Storage.DataFile}
	if cfg.Storage.BlobBackend == config.BlobBackendR2 {
		r2, err := storage.NewR2Blob(ctx, storage.R2Options{
			AccountID:       cfg.Storage.R2.AccountID,
			AccessKeyID:     cfg.Storage.R2.AccessKeyID,
			AccessKeySecret: cfg.Storage.R2.AccessKeySecret,
			Bucket:          cfg.Storage.R2.Bucket,
			Key:             cfg.Storage.R2.ObjectKey,
		})
		if err != nil {
			return nil, err
		}
		blob = r2
	}
	return storage.NewFileStore(blob, defaultEvent), nil
}
