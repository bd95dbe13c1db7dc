package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"careerquest/internal/auth"
	"careerquest/internal/config"
	"careerquest/internal/httpapi"
	"careerquest/internal/ledger"
	"careerquest/internal/metrics"
	"careerquest/internal/notify"
	"careerquest/internal/queue"
	"careerquest/internal/ratelimit"
	"careerquest/internal/store"
)

func main() {
	cfg := config.Load()
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	// Set Gin mode based on environment
	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg, logger); err != nil {
		logger.Error("http server failed", "err", err)
		os.Exit(1)
	}
}

func runHTTP(cfg config.App, logger *slog.Logger) error {
	if err := cfg.Validate(false); err != nil {
		return err
	}
	if err := cfg.RequireSharedQueue(); err != nil {
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
	prometheus.MustRegister(metrics.NewPoolCollector(db.Pool))

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	q, err := queue.New(cfg.QueueBackend, redisClient.Client, logger)
	if err != nil {
		return err
	}

	svc := ledger.NewService(db, logger, cfg.RatingLimit)
	if err := svc.EnsureAdmins(ctx, cfg.BootstrapAdmins); err != nil {
		return err
	}
	h := httpapi.New(svc, notify.NewPublisher(q), map[string]httpapi.HealthChecker{
		"db":    db,
		"redis": redisClient,
	}, logger)

	r := gin.New()

	// Recovery middleware
	r.Use(gin.Recovery())

	// Custom logger
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))

	r.Use(httpapi.RequestID())
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	// Rate limiting
	r.Use(ratelimit.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	h.Register(r, auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer, svc, logger))

	// Graceful shutdown
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down server")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server forced shutdown", "err", err)
	}
	logger.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		// Only add HSTS in production
		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
