package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func TestAuth_ValidToken_AuthorizationHeader(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID, "test@example.com", "org_admin")
	require.NoError(t, err)

	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := auth.CurrentIdentity(r.Context())
		require.NoError(t, err)
		assert.Equal(t, userID, id.UserID)
		assert.Equal(t, "test@example.com", id.Email)
		assert.Equal(t, "org_admin", GetUserRole(r.Context()))
		okHandler(w, r)
	}))

	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestAuth_ValidToken_Cookie(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID, "test@example.com", "member")
	require.NoError(t, err)

	handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userID, GetUserID(r.Context()))
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/api/v1/me", nil)
	req.AddCookie(&http.Cookie{Name: TokenCookie, Value: token})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_Rejections(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", 24*time.Hour)

	expired := auth.NewJWTService("test-secret", -time.Hour)
	expiredToken, err := expired.GenerateToken(uuid.New(), "old@example.com", "member")
	require.NoError(t, err)

	otherSecret := auth.NewJWTService("other-secret", time.Hour)
	foreignToken, err := otherSecret.GenerateToken(uuid.New(), "x@example.com", "member")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"no token", "", "Unauthorized"},
		{"garbage token", "Bearer not-a-jwt", "Unauthorized"},
		{"wrong secret", "Bearer " + foreignToken, "Unauthorized"},
		{"expired", "Bearer " + expiredToken, "Token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := Auth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest("GET", "/api/v1/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.False(t, called)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	jwtService := auth.NewJWTService("test-secret", time.Hour)
	userID := uuid.New()
	token, err := jwtService.GenerateToken(userID, "a@example.com", "member")
	require.NoError(t, err)

	var seen uuid.UUID
	handler := OptionalAuth(jwtService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest("POST", "/api/v1/organization-requests", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, userID, seen)

	req = httptest.NewRequest("POST", "/api/v1/organization-requests", nil)
	req.Header.Set("Authorization", "Bearer junk")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, uuid.Nil, seen)
}

type stubLoader struct {
	user *models.User
	err  error
}

func (s stubLoader) GetUserByID(context.Context, uuid.UUID) (*models.User, error) {
	return s.user, s.err
}

func TestLoadProfile(t *testing.T) {
	userID := uuid.New()
	withClaims := func() *http.Request {
		req := httptest.NewRequest("GET", "/api/v1/me", nil)
		return req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: userID, Role: "member"}))
	}

	t.Run("active user cached on context", func(t *testing.T) {
		user := &models.User{Base: models.Base{ID: userID}, Email: "p@example.com", IsActive: true}
		handler := LoadProfile(stubLoader{user: user})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Same(t, user, auth.Profile(r.Context()))
			w.WriteHeader(http.StatusOK)
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, withClaims())
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("inactive user", func(t *testing.T) {
		user := &models.User{Base: models.Base{ID: userID}}
		rec := httptest.NewRecorder()
		LoadProfile(stubLoader{user: user})(http.HandlerFunc(okHandler)).ServeHTTP(rec, withClaims())
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		rec := httptest.NewRecorder()
		LoadProfile(stubLoader{err: auth.ErrUserNotFound})(http.HandlerFunc(okHandler)).ServeHTTP(rec, withClaims())
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		rec := httptest.NewRecorder()
		LoadProfile(stubLoader{err: errors.New("db down")})(http.HandlerFunc(okHandler)).ServeHTTP(rec, withClaims())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("no claims", func(t *testing.T) {
		rec := httptest.NewRecorder()
		LoadProfile(stubLoader{})(http.HandlerFunc(okHandler)).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestGetUserID_NotInContext(t *testing.T) {
	assert.Equal(t, uuid.Nil, GetUserID(context.Background()))
	assert.Empty(t, GetUserRole(context.Background()))
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name     string
		role     string
		allowed  []string
		wantCode int
	}{
		{"has role", "platform_admin", []string{"platform_admin"}, http.StatusOK},
		{"one of several", "org_admin", []string{"platform_admin", "org_admin"}, http.StatusOK},
		{"missing role", "member", []string{"platform_admin"}, http.StatusForbidden},
		{"anonymous", "", []string{"platform_admin"}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/v1/organization-requests", nil)
			if tt.role != "" {
				req = req.WithContext(auth.WithClaims(req.Context(), &auth.Claims{UserID: uuid.New(), Role: tt.role}))
			}
			rec := httptest.NewRecorder()
			RequireRole(tt.allowed...)(http.HandlerFunc(okHandler)).ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}
