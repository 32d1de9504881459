package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
	"github.com/hugh/chimeo/internal/app"
	"github.com/hugh/chimeo/internal/tasks"
	"github.com/hugh/chimeo/pkg/config"
	"github.com/hugh/chimeo/pkg/queue"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/joho/godotenv"
)

const (
	schedulerTickSpec = "@every 1m"
	followersSyncSpec = "0 3 * * *"
)

func main() {
	// Load .env file
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := util.NewLogger(cfg.Server.Env, "chimeo-worker")
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

// run owns every connection it opens, so all of them are closed on return.
func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting Chimeo worker")

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing: %w", err)
	}
	defer a.Close()

	if a.Redis == nil {
		return errors.New("worker requires Redis")
	}

	srv := queue.NewServer(&cfg.Redis, cfg.Alerts.FanOutConcurrency, logger)

	handler := tasks.NewHandler(a.Alerts, a.Followers, logger)
	mux := asynq.NewServeMux()
	handler.RegisterHandlers(mux)

	scheduler := queue.NewScheduler(&cfg.Redis)
	if err := registerPeriodic(scheduler); err != nil {
		return err
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}
	defer scheduler.Shutdown()

	logger.Info("worker started, waiting for tasks...")

	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(mux); err != nil {
		return fmt.Errorf("running task server: %w", err)
	}
	logger.Info("shutting down worker...")
	return nil
}

type periodicRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

func registerPeriodic(s periodicRegistrar) error {
	if _, err := s.Register(schedulerTickSpec, tasks.NewSchedulerTickTask()); err != nil {
		return fmt.Errorf("registering scheduler tick: %w", err)
	}
	syncTask, err := tasks.NewFollowersSyncTask(tasks.FollowersSyncPayload{})
	if err != nil {
		return fmt.Errorf("building follower sync task: %w", err)
	}
	if _, err := s.Register(followersSyncSpec, syncTask, asynq.Queue(queue.QueueLow)); err != nil {
		return fmt.Errorf("registering follower sync: %w", err)
	}
	return nil
}
