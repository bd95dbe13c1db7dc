package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"careerquest/internal/auth"
	"careerquest/internal/bot"
	"careerquest/internal/config"
	"careerquest/internal/ledger"
	"careerquest/internal/notify"
	"careerquest/internal/queue"
	"careerquest/internal/ratelimit"
	"careerquest/internal/session"
	"careerquest/internal/store"
	"careerquest/internal/telegram"
)

// Bot long-polls Telegram and serves students and organizers.
func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("bot failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.App, logger *slog.Logger) error {
	if err := cfg.Validate(true); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, store.PoolConfig{
		MaxConns:         int32(cfg.DBMaxConns),
		MinConns:         int32(cfg.DBMinConns),
		AcquireTimeout:   cfg.DBAcquireTimeout,
		StatementTimeout: cfg.DBStatementTimeout,
	})
	if db != nil {
		defer db.Close()
	}
	if err != nil {
		return err
	}
	if err := store.Migrate(ctx, db); err != nil {
		return err
	}

	svc := ledger.NewService(db, logger, cfg.RatingLimit)
	if err := svc.EnsureAdmins(ctx, cfg.BootstrapAdmins); err != nil {
		return err
	}

	var rc *redis.Client
	if cfg.QueueBackend != "memory" || cfg.SessionBackend != "memory" {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		if !redisClient.Healthy(ctx) {
			logger.Warn("redis not reachable yet", "addr", cfg.RedisAddr)
		}
		rc = redisClient.Client
	}
	q, err := queue.New(cfg.QueueBackend, rc, logger)
	if err != nil {
		return err
	}
	sessions, err := session.New(cfg.SessionBackend, rc, cfg.SessionTTL)
	if err != nil {
		return err
	}

	tg, err := telegram.New(cfg.TelegramAPIURL, cfg.BotToken)
	if err != nil {
		return err
	}
	logger.Info("telegram bot authorized", "username", tg.Username())
	if err := tg.SetMyCommands(ctx, bot.CommandMenu()); err != nil {
		logger.Warn("could not register command menu", "err", err)
	}

	b := bot.New(svc, tg, sessions, notify.NewPublisher(q),
		bot.WithLogger(logger),
		bot.WithThrottle(ratelimit.NewThrottle(cfg.ThrottleInterval)),
		bot.WithTokenIssuer(func(userID int64) (string, time.Time, error) {
			tok, err := auth.Issue(userID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL)
			return tok.AccessToken, tok.ExpiresAt, err
		}),
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return b.Run(ctx, tg, cfg.PollTimeout) })
	if cfg.QueueBackend == "memory" {
		// no separate worker can see an in-memory queue
		dispatcher := notify.NewDispatcher(svc, tg, logger, cfg.BroadcastConcurrency)
		g.Go(func() error { return notify.Run(ctx, q, dispatcher, logger) })
	}
	return g.Wait()
}
