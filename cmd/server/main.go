package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hugh/chimeo/internal/api"
	"github.com/hugh/chimeo/internal/api/handlers"
	"github.com/hugh/chimeo/internal/app"
	"github.com/hugh/chimeo/pkg/config"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "chimeo-server")
	slog.SetDefault(logger)

	logger.Info("starting Chimeo server",
		"env", cfg.Server.Env,
		"addr", cfg.Server.Addr(),
	)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	var syncQueue handlers.SyncQueue
	if a.Enqueuer != nil {
		syncQueue = a.Enqueuer
	}

	router := api.NewRouter(api.RouterConfig{
		DB:             a.DB,
		Redis:          a.Redis,
		Logger:         logger,
		JWTService:     a.JWT,
		AuthService:    a.Auth,
		Google:         a.Google,
		Directory:      a.Directory,
		Followers:      a.Followers,
		Alerts:         a.Alerts,
		Requests:       a.Requests,
		SyncQueue:      syncQueue,
		Metrics:        a.Metrics,
		Gatherer:       a.Registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		RateLimitReqs:  cfg.RateLimit.Requests,
		RateLimitSecs:  cfg.RateLimit.WindowSeconds,
		SecureCookies:  !cfg.Server.IsDevelopment(),
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	router.Close()
	// Let in-process fan-outs finish before the database goes away.
	a.Alerts.Wait()
	a.Close()

	logger.Info("server stopped")
}
