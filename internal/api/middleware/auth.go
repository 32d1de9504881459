package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
)

// TokenCookie carries the access token for browser clients.
const TokenCookie = "token"

func tokenFromRequest(r *http.Request) string {
	// 1. Authorization header (mobile and API clients)
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	// 2. Cookie set by login and the Google callback
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	return ""
}

// Auth rejects requests without a valid access token and stores the token
// claims on the request context.
func Auth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := tokenFromRequest(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				msg := "Unauthorized"
				if errors.Is(err, auth.ErrExpiredToken) {
					msg = "Token expired"
				}
				writeError(w, http.StatusUnauthorized, msg)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}

// OptionalAuth attaches claims when a valid token is present and lets
// anonymous requests through unchanged.
func OptionalAuth(jwtService *auth.JWTService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token := tokenFromRequest(r); token != "" {
				if claims, err := jwtService.ValidateToken(token); err == nil {
					r = r.WithContext(auth.WithClaims(r.Context(), claims))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserLoader is satisfied by *auth.Service.
type UserLoader interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// LoadProfile caches the caller's user record on the context. Deleted or
// deactivated accounts are turned away even while their token is still valid.
func LoadProfile(users UserLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth.CurrentIdentity(r.Context())
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}

			user, err := users.GetUserByID(r.Context(), id.UserID)
			if err != nil {
				if errors.Is(err, auth.ErrUserNotFound) {
					writeError(w, http.StatusUnauthorized, "Unauthorized")
					return
				}
				writeError(w, http.StatusInternalServerError, "Failed to load user")
				return
			}
			if !user.IsActive {
				writeError(w, http.StatusForbidden, "Account is inactive")
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithProfile(r.Context(), user)))
		})
	}
}

// GetUserID returns the caller's id, or uuid.Nil for anonymous requests.
func GetUserID(ctx context.Context) uuid.UUID {
	id, err := auth.CurrentIdentity(ctx)
	if err != nil {
		return uuid.Nil
	}
	return id.UserID
}

func GetUserRole(ctx context.Context) string {
	id, err := auth.CurrentIdentity(ctx)
	if err != nil {
		return ""
	}
	return id.Role
}

// RequireRole middleware ensures user has specific role
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userRole := GetUserRole(r.Context())

			for _, role := range roles {
				if userRole == role {
					next.ServeHTTP(w, r)
					return
				}
			}

			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
