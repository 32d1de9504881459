// Package app builds the service graph shared by the server and the worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database"
	"github.com/hugh/chimeo/internal/followers"
	"github.com/hugh/chimeo/internal/geocode"
	"github.com/hugh/chimeo/internal/metrics"
	"github.com/hugh/chimeo/internal/mirror"
	"github.com/hugh/chimeo/internal/organizations"
	"github.com/hugh/chimeo/internal/push"
	"github.com/hugh/chimeo/internal/requests"
	"github.com/hugh/chimeo/internal/storage"
	"github.com/hugh/chimeo/internal/tasks"
	"github.com/hugh/chimeo/pkg/config"
	"github.com/hugh/chimeo/pkg/crypto"
	"github.com/hugh/chimeo/pkg/queue"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const directoryCacheTTL = 5 * time.Minute

type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB       *gorm.DB
	Redis    *redis.Client // nil when Redis is unreachable
	Queue    *asynq.Client // nil when Redis is unreachable
	Enqueuer *tasks.Enqueuer

	Metrics  *metrics.Metrics
	Registry *prometheus.Registry

	JWT       *auth.JWTService
	Auth      *auth.Service
	Google    *auth.GoogleOAuth
	Directory *organizations.Directory
	Followers *followers.Store
	Alerts    *alerts.Service
	Requests  *requests.Manager

	closers []func() error
}

// New connects to every backing service and wires the domain services.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}

	db, err := database.Connect(&cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error { return database.Close(db) })

	if err := database.AutoMigrate(db); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("failed to connect to Redis, fan-out runs inline", "error", err)
		_ = rdb.Close()
	} else {
		a.Redis = rdb
		a.Queue = queue.NewClient(&cfg.Redis)
		a.Enqueuer = tasks.NewEnqueuer(a.Queue)
		a.closers = append(a.closers, a.Queue.Close, rdb.Close)
	}

	a.Metrics = metrics.New()
	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.Metrics.MustRegister(a.Registry)

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	provider, err := newPushProvider(ctx, cfg.Push, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var m mirror.Mirror = mirror.Noop{}
	if cfg.Firestore.ProjectID != "" {
		fs, err := mirror.NewFirestore(ctx, cfg.Firestore.ProjectID, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("creating firestore mirror: %w", err)
		}
		m = fs
		a.closers = append(a.closers, fs.Close)
	}

	sealer, err := crypto.NewSealer(cfg.Encryption.Key)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating sealer: %w", err)
	}
	if cfg.Encryption.Key == "" {
		logger.Warn("ENCRYPTION_KEY not set, using generated key - pending setup tokens will be lost on restart")
	}

	var cache organizations.Cache = organizations.NewMemoryCache(directoryCacheTTL)
	if a.Redis != nil {
		cache = organizations.NewRedisCache(a.Redis, directoryCacheTTL, func(err error) {
			logger.Warn("directory cache error", "error", err)
		})
	}

	a.JWT = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Expiry())
	a.Auth = auth.NewService(db, a.JWT, cfg.OAuth.FederatedDomains)
	if cfg.OAuth.GoogleEnabled() {
		a.Google = auth.NewGoogleOAuth(cfg.OAuth.GoogleClientID, cfg.OAuth.GoogleClientSecret, cfg.OAuth.GoogleRedirectURL)
	}

	a.Directory = organizations.NewDirectory(db, cache, store, m, logger)
	a.Auth.SetAdminClaimer(a.Directory)
	a.Followers = followers.NewStore(db, logger, a.Metrics)
	a.Alerts = alerts.NewService(alerts.Deps{
		DB:        db,
		Directory: a.Directory,
		Followers: a.Followers,
		Push:      provider,
		Store:     store,
		Mirror:    m,
		Metrics:   a.Metrics,
		Logger:    logger,
	}, alerts.Config{
		TTL:         cfg.Alerts.TTL(),
		Concurrency: cfg.Alerts.FanOutConcurrency,
	})
	if a.Enqueuer != nil {
		a.Alerts.SetEnqueuer(a.Enqueuer)
	}

	a.Requests = requests.NewManager(requests.Deps{
		DB:          db,
		Provisioner: a.Auth,
		Geocoder:    newGeocoder(cfg.Geocoder, logger),
		Sealer:      sealer,
		Directory:   a.Directory,
		Fallback:    requests.Coordinate{Latitude: cfg.Geocoder.DefaultLat, Longitude: cfg.Geocoder.DefaultLon},
		Metrics:     a.Metrics,
		Logger:      logger,
	})

	return a, nil
}

func newGeocoder(cfg config.GeocoderConfig, logger *slog.Logger) geocode.Geocoder {
	if cfg.URL == "" || cfg.URL == "static" {
		logger.Info("no geocoder configured, using default coordinates")
		return geocode.Static{Latitude: cfg.DefaultLat, Longitude: cfg.DefaultLon}
	}
	return geocode.NewNominatim(cfg.URL, cfg.UserAgent, logger)
}

func newPushProvider(ctx context.Context, cfg config.PushConfig, logger *slog.Logger) (push.Provider, error) {
	switch cfg.Driver {
	case "fcm":
		p, err := push.NewFCM(ctx, cfg.FCMProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("creating FCM provider: %w", err)
		}
		return p, nil
	case "log", "":
		return push.NewLogProvider(logger), nil
	default:
		return nil, fmt.Errorf("unknown push driver %q", cfg.Driver)
	}
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
