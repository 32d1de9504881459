package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/apperr"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/pkg/crypto"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound          = fmt.Errorf("%w: user not found", apperr.ErrNotFound)
	ErrUserExists            = fmt.Errorf("%w: user already exists", apperr.ErrConflict)
	ErrInvalidCredentials    = fmt.Errorf("%w: invalid credentials", apperr.ErrUnauthenticated)
	ErrInactiveUser          = fmt.Errorf("%w: user is inactive", apperr.ErrForbidden)
	ErrPasswordSetupRequired = fmt.Errorf("%w: password setup required", apperr.ErrForbidden)
	ErrFederatedAccount      = fmt.Errorf("%w: account uses Google sign-in", apperr.ErrForbidden)
	ErrInvalidSetupToken     = fmt.Errorf("%w: invalid or expired setup token", apperr.ErrUnauthenticated)
)

const setupTokenTTL = 7 * 24 * time.Hour

type Service struct {
	db               *gorm.DB
	jwt              *JWTService
	federatedDomains map[string]bool
	claimer          AdminClaimer
}

func NewService(db *gorm.DB, jwt *JWTService, federatedDomains []string) *Service {
	domains := make(map[string]bool, len(federatedDomains))
	for _, d := range federatedDomains {
		domains[strings.ToLower(strings.TrimSpace(d))] = true
	}
	return &Service{db: db, jwt: jwt, federatedDomains: domains}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

type LoginInput struct {
	Email    string
	Password string
}

type AuthResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// ProvisionResult describes the account backing an organization request.
type ProvisionResult struct {
	User       *models.User
	Existing   bool
	Federated  bool
	SetupToken string // only set for new password accounts
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SetAdminClaimer wires the directory that converts placeholder admin keys.
// Register never claims them: only SetupPassword and SignInFederated prove
// that the caller owns the email.
func (s *Service) SetAdminClaimer(c AdminClaimer) {
	s.claimer = c
}

// claimAdminKeys returns user reloaded when any organization was claimed.
func (s *Service) claimAdminKeys(ctx context.Context, user *models.User) (*models.User, error) {
	if s.claimer == nil {
		return user, nil
	}
	claimed, err := s.claimer.ClaimPlaceholderAdmin(ctx, user.Email, user.ID)
	if err != nil {
		return nil, fmt.Errorf("claiming organization admin: %w", err)
	}
	if len(claimed) == 0 {
		return user, nil
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *Service) Register(ctx context.Context, input RegisterInput) (*AuthResponse, error) {
	email := normalizeEmail(input.Email)

	var existing models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error; err == nil {
		return nil, ErrUserExists
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		Name:         input.Name,
		AuthProvider: models.AuthProviderPassword,
		IsActive:     true,
		AlertRadius:  models.DefaultAlertRadiusMiles,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	return s.issue(&user)
}

func (s *Service) Login(ctx context.Context, input LoginInput) (*AuthResponse, error) {
	var user models.User
	if err := s.db.WithContext(ctx).
		Where("email = ?", normalizeEmail(input.Email)).
		First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	if user.NeedsPasswordSetup {
		return nil, ErrPasswordSetupRequired
	}
	if user.PasswordHash == "" && user.AuthProvider == models.AuthProviderGoogle {
		return nil, ErrFederatedAccount
	}
	if !CheckPassword(input.Password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.issue(&user)
}

func (s *Service) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail looks a user up by case-insensitive email.
func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Provision makes sure an account exists for email. Existing accounts are
// linked as-is. Emails on a federated domain get a Google account that signs
// in through OAuth; everything else gets a password account that must be
// activated with the returned setup token.
func (s *Service) Provision(ctx context.Context, email, name string) (*ProvisionResult, error) {
	email = normalizeEmail(email)

	existing, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return &ProvisionResult{User: existing, Existing: true}, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user := models.User{
		Email:       email,
		Name:        name,
		IsActive:    true,
		AlertRadius: models.DefaultAlertRadiusMiles,
	}
	result := &ProvisionResult{User: &user}

	if s.isFederated(email) {
		user.AuthProvider = models.AuthProviderGoogle
		result.Federated = true
	} else {
		token, err := crypto.RandomToken(32)
		if err != nil {
			return nil, err
		}
		hash, err := HashPassword(token)
		if err != nil {
			return nil, err
		}
		user.AuthProvider = models.AuthProviderPassword
		user.NeedsPasswordSetup = true
		user.SetupTokenHash = hash
		user.SetupTokenExpires = time.Now().Add(setupTokenTTL).Unix()
		result.SetupToken = token
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("creating placeholder user: %w", err)
	}
	return result, nil
}

func (s *Service) isFederated(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	return s.federatedDomains[email[at+1:]]
}

// SetupPassword activates a provisioned account with its setup token.
func (s *Service) SetupPassword(ctx context.Context, email, token, password string) (*AuthResponse, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidSetupToken
		}
		return nil, err
	}
	if !user.NeedsPasswordSetup || user.SetupTokenExpires < time.Now().Unix() {
		return nil, ErrInvalidSetupToken
	}
	if !CheckPassword(token, user.SetupTokenHash) {
		return nil, ErrInvalidSetupToken
	}

	// Claim before the token is spent so a failure can be retried.
	user, err = s.claimAdminKeys(ctx, user)
	if err != nil {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"password_hash":        hash,
		"needs_password_setup": false,
		"setup_token_hash":     "",
		"setup_token_expires":  0,
	}).Error; err != nil {
		return nil, fmt.Errorf("saving password: %w", err)
	}
	user.NeedsPasswordSetup = false

	return s.issue(user)
}

func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, current, next string) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !CheckPassword(current, user.PasswordHash) {
		return ErrInvalidCredentials
	}
	hash, err := HashPassword(next)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error
}

// SignInFederated signs in (or creates) the account for a verified Google email.
// A pending placeholder account is converted to a federated one, and admin
// keys recorded under the email are claimed.
func (s *Service) SignInFederated(ctx context.Context, email, name string) (*AuthResponse, error) {
	user, err := s.GetUserByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		user = &models.User{
			Email:        normalizeEmail(email),
			Name:         name,
			AuthProvider: models.AuthProviderGoogle,
			IsActive:     true,
			AlertRadius:  models.DefaultAlertRadiusMiles,
		}
		if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
	case err != nil:
		return nil, err
	case user.NeedsPasswordSetup:
		if err := s.db.WithContext(ctx).Model(user).Updates(map[string]interface{}{
			"auth_provider":        models.AuthProviderGoogle,
			"needs_password_setup": false,
			"setup_token_hash":     "",
			"setup_token_expires":  0,
		}).Error; err != nil {
			return nil, fmt.Errorf("converting placeholder: %w", err)
		}
		user.AuthProvider = models.AuthProviderGoogle
		user.NeedsPasswordSetup = false
	}

	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	user, err = s.claimAdminKeys(ctx, user)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

// RegisterPushToken stores the device token used by the push provider.
// An empty token clears it.
func (s *Service) RegisterPushToken(ctx context.Context, userID uuid.UUID, token string) error {
	now := time.Now()
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
		"push_token":            strings.TrimSpace(token),
		"push_token_updated_at": &now,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

type PreferencesInput struct {
	AlertRadius *float64
	Preferences *models.NotificationPreferences
}

func (s *Service) UpdatePreferences(ctx context.Context, userID uuid.UUID, input PreferencesInput) (*models.User, error) {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if input.AlertRadius != nil {
		if *input.AlertRadius <= 0 {
			return nil, apperr.Validation("alert radius must be positive")
		}
		user.AlertRadius = *input.AlertRadius
	}
	if input.Preferences != nil {
		for _, hm := range []string{input.Preferences.QuietHoursStart, input.Preferences.QuietHoursEnd} {
			if hm == "" {
				continue
			}
			if _, err := time.Parse("15:04", hm); err != nil {
				return nil, apperr.Validation("quiet hours must be HH:MM")
			}
		}
		if tz := input.Preferences.Timezone; tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return nil, apperr.Validation("unknown timezone %q", tz)
			}
		}
		user.Preferences = *input.Preferences
	}
	if err := s.db.WithContext(ctx).Save(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) issue(user *models.User) (*AuthResponse, error) {
	token, err := s.jwt.GenerateToken(user.ID, user.Email, user.Role())
	if err != nil {
		return nil, err
	}
	return &AuthResponse{Token: token, User: user}, nil
}
