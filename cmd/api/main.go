package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"filevault/internal/cache"
	"filevault/internal/config"
	"filevault/internal/database"
	"filevault/internal/handlers"
	"filevault/internal/jobs"
	"filevault/internal/log"
	"filevault/internal/quota"
	"filevault/internal/repository"
	"filevault/internal/repository/memory"
	"filevault/internal/server"
	"filevault/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	var (
		dbPool   *pgxpool.Pool
		users    repository.UserRepo
		sessions repository.SessionRepo
		files    repository.FileRepo
		shares   repository.ShareRepo
		audit    repository.AuditRepo
		ledger   quota.Ledger
	)

	if cfg.Postgres.DSN != "" {
		if err := database.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			logger.Fatal().Err(err).Msg("migrations failed")
		}

		dbPool, err = database.NewPostgresPool(ctx, cfg.Postgres)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect postgres")
		}

		users = repository.NewUserRepository(dbPool)
		sessions = repository.NewSessionRepository(dbPool)
		files = repository.NewFileRepository(dbPool)
		shares = repository.NewShareRepository(dbPool)
		audit = repository.NewAuditRepository(dbPool)
		ledger = quota.NewPostgresLedger(dbPool)
	} else {
		// No DSN configured: ephemeral in-memory store for local development.
		logger.Warn().Msg("no postgres dsn configured, using in-memory store; data will not survive a restart")
		mem := memory.NewStore()
		users = mem.Users()
		sessions = mem.Sessions()
		files = mem.Files()
		shares = mem.Shares()
		audit = mem.Audit()
		ledger = mem.Ledger()
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("redis unavailable, rate limiting and job locks disabled")
			redisClient = nil
		}
	}

	store, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init blob store")
	}

	handlerSet := handlers.NewHandlerSet(logger, cfg, redisClient, users, sessions, files, shares, audit, ledger, store)

	if err := handlerSet.AuthService().EnsureAdmin(ctx); err != nil {
		logger.Fatal().Err(err).Msg("admin bootstrap failed")
	}

	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	scheduler := jobs.NewScheduler(redisClient, sessions, shares, store, logger)
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

func newBlobStore(ctx context.Context, cfg *config.AppConfig, logger zerolog.Logger) (storage.BlobStore, error) {
	if cfg.Storage.Backend == "s3" {
		store, err := storage.NewObjectStore(cfg.Storage)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx, cfg.Storage.Region); err != nil {
			logger.Warn().Err(err).Msg("ensure bucket failed")
		}
		return store, nil
	}
	return storage.NewDiskStore(cfg.Storage.Dir)
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
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error().Err(err).Msg("forced shutdown failed")
		}
	}

	scheduler.Stop()

	if db != nil {
		db.Close()
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("redis close error")
		}
	}

	logger.Info().Msg("server exited cleanly")
}
