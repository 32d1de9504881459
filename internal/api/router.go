package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hugh/chimeo/internal/alerts"
	"github.com/hugh/chimeo/internal/api/handlers"
	"github.com/hugh/chimeo/internal/api/middleware"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/followers"
	"github.com/hugh/chimeo/internal/metrics"
	"github.com/hugh/chimeo/internal/organizations"
	"github.com/hugh/chimeo/internal/requests"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
	limiter *middleware.RateLimiter
}

type RouterConfig struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Logger      *slog.Logger
	JWTService  *auth.JWTService
	AuthService *auth.Service
	Google      *auth.GoogleOAuth // nil disables Google sign-in

	Directory *organizations.Directory
	Followers *followers.Store
	Alerts    *alerts.Service
	Requests  *requests.Manager
	SyncQueue handlers.SyncQueue // optional; enables async follower sync

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // served on /metrics when set

	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	SecureCookies  bool
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()
	router := &Router{Router: r}

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.RateLimitReqs > 0 {
		router.limiter = middleware.NewRateLimiter(cfg.RateLimitReqs, time.Duration(cfg.RateLimitSecs)*time.Second)
		r.Use(middleware.RateLimit(router.limiter, middleware.ByIP))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService, cfg.Google, cfg.JWTService.Expiry(), cfg.SecureCookies, cfg.Logger)
	meHandler := handlers.NewMeHandler(cfg.AuthService, cfg.Followers, cfg.Alerts)
	orgHandler := handlers.NewOrganizationHandler(cfg.Directory, cfg.Followers, cfg.SyncQueue)
	alertHandler := handlers.NewAlertHandler(cfg.Alerts)
	requestHandler := handlers.NewRequestHandler(cfg.Requests)

	authenticated := []func(http.Handler) http.Handler{
		middleware.Auth(cfg.JWTService),
		middleware.LoadProfile(cfg.AuthService),
	}
	platformAdmin := append(authenticated[:len(authenticated):len(authenticated)], middleware.RequireRole("platform_admin"))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Post("/setup-password", authHandler.SetupPassword)
			r.Get("/google/login", authHandler.GoogleLogin)
			r.Get("/google/callback", authHandler.GoogleCallback)
		})

		r.Route("/organization-requests", func(r chi.Router) {
			r.With(middleware.OptionalAuth(cfg.JWTService)).Post("/", requestHandler.Submit)

			r.With(platformAdmin...).Get("/", requestHandler.List)
			r.With(platformAdmin...).Get("/{id}", requestHandler.Get)
			r.With(platformAdmin...).Post("/{id}/review", requestHandler.Review)
			r.With(authenticated...).Post("/{id}/resubmit", requestHandler.Resubmit)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated...)

			r.Route("/me", func(r chi.Router) {
				r.Get("/", meHandler.Get)
				r.Put("/push-token", meHandler.UpdatePushToken)
				r.Put("/preferences", meHandler.UpdatePreferences)
				r.Put("/password", meHandler.ChangePassword)
				r.Get("/following", meHandler.Following)
				r.Get("/feed", meHandler.Feed)
			})

			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", orgHandler.List)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", orgHandler.Get)
					r.Put("/", orgHandler.Update)
					r.Post("/follow", orgHandler.Follow)
					r.Delete("/follow", orgHandler.Unfollow)
					r.Get("/admin", orgHandler.AdminStatus)
					r.Post("/logo", orgHandler.UploadLogo)
					r.Delete("/logo", orgHandler.DeleteLogo)
					r.With(middleware.RequireRole("platform_admin")).Post("/followers/sync", orgHandler.SyncFollowers)

					r.Get("/groups", orgHandler.ListGroups)
					r.Post("/groups", orgHandler.CreateGroup)
					r.Put("/groups/{groupID}", orgHandler.UpdateGroup)
					r.Put("/groups/{groupID}/preference", orgHandler.SetGroupPreference)

					r.Get("/alerts", alertHandler.List)
					r.Post("/alerts", alertHandler.Create)
					r.Post("/alerts/images", alertHandler.UploadImage)
					r.Delete("/alerts/{alertID}", alertHandler.Delete)

					r.Get("/schedules", alertHandler.ListSchedules)
					r.Post("/schedules", alertHandler.CreateSchedule)
					r.Delete("/schedules/{scheduleID}", alertHandler.DeleteSchedule)
				})
			})
		})
	})

	return router
}

// Close stops background work owned by the router.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Stop()
	}
}
