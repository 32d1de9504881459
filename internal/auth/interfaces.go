package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/database/models"
)

// Authenticator defines the interface for user authentication operations.
type Authenticator interface {
	Register(ctx context.Context, input RegisterInput) (*AuthResponse, error)
	Login(ctx context.Context, input LoginInput) (*AuthResponse, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	SetupPassword(ctx context.Context, email, token, password string) (*AuthResponse, error)
	SignInFederated(ctx context.Context, email, name string) (*AuthResponse, error)
}

// Provisioner creates or links the account behind an organization request.
type Provisioner interface {
	Provision(ctx context.Context, email, name string) (*ProvisionResult, error)
}

// AdminClaimer converts organization admin keys recorded under an email into
// the id of the account that proved it owns that email.
type AdminClaimer interface {
	ClaimPlaceholderAdmin(ctx context.Context, email string, userID uuid.UUID) ([]string, error)
}

// TokenService defines the interface for JWT token operations.
type TokenService interface {
	GenerateToken(userID uuid.UUID, email, role string) (string, error)
	ValidateToken(tokenString string) (*Claims, error)
}

// Compile-time interface satisfaction checks
var (
	_ Authenticator = (*Service)(nil)
	_ Provisioner   = (*Service)(nil)
	_ TokenService  = (*JWTService)(nil)
)
