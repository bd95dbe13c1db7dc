package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"careerquest/internal/config"
	"careerquest/internal/ledger"
	"careerquest/internal/notify"
	"careerquest/internal/queue"
	"careerquest/internal/store"
	"careerquest/internal/telegram"
)

// Worker consumes queued broadcasts and delivers them to every student.
func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := cfg.Validate(true); err != nil {
		logger.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	if err := cfg.RequireSharedQueue(); err != nil {
		logger.Error("worker needs a shared queue", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxConns:         int32(cfg.DBMaxConns),
		MinConns:         int32(cfg.DBMinConns),
		AcquireTimeout:   cfg.DBAcquireTimeout,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if err != nil {
		logger.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Migrate(ctx, db); err != nil {
		logger.Error("migration failed", "err", err)
		os.Exit(1)
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	q, err := queue.New(cfg.QueueBackend, redisClient.Client, logger)
	if err != nil {
		logger.Error("queue init failed", "err", err)
		os.Exit(1)
	}

	svc := ledger.NewService(db, logger, cfg.RatingLimit)
	gateway, err := telegram.New(cfg.TelegramAPIURL, cfg.BotToken)
	if err != nil {
		logger.Error("telegram client init failed", "err", err)
		os.Exit(1)
	}
	dispatcher := notify.NewDispatcher(svc, gateway, logger, cfg.BroadcastConcurrency)

	logger.Info("worker started, waiting for broadcasts")
	if err := notify.Run(ctx, q, dispatcher, logger); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}
