package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/database/models"
)

// Identity is the caller as far as every service is concerned.
type Identity struct {
	UserID uuid.UUID
	Email  string
	Role   string
}

func (i Identity) IsPlatformAdmin() bool {
	return i.Role == "platform_admin"
}

type ctxKey int

const (
	claimsKey ctxKey = iota
	profileKey
)

// WithClaims stores validated token claims on ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// WithProfile stores the loaded user profile on ctx.
func WithProfile(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, profileKey, user)
}

// Profile returns the cached profile, if the profile loader ran.
func Profile(ctx context.Context) *models.User {
	u, _ := ctx.Value(profileKey).(*models.User)
	return u
}

// CurrentIdentity is the only place the caller's user id is derived.
// Token claims win; the cached profile is consulted only when no claims are
// present (background jobs that act on behalf of a loaded user).
func CurrentIdentity(ctx context.Context) (Identity, error) {
	if c, ok := ctx.Value(claimsKey).(*Claims); ok && c != nil && c.UserID != uuid.Nil {
		return Identity{UserID: c.UserID, Email: c.Email, Role: c.Role}, nil
	}
	if u := Profile(ctx); u != nil && u.ID != uuid.Nil {
		return Identity{UserID: u.ID, Email: u.Email, Role: u.Role()}, nil
	}
	return Identity{}, apperr.ErrUnauthenticated
}
