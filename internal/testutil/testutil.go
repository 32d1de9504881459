package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database"
	"github.com/hugh/chimeo/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB creates an in-memory SQLite database for testing
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	// Every pooled connection to ":memory:" is a separate database.
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}

// CreateTestOrg creates a verified organization administered by admins.
func CreateTestOrg(t *testing.T, db *gorm.DB, name string, admins ...*models.User) *models.Organization {
	t.Helper()

	org := &models.Organization{
		ID:       "test-org-" + uuid.New().String()[:8],
		Name:     name,
		Type:     models.OrganizationTypeBusiness,
		Verified: true,
		AdminIDs: map[string]bool{},
		Location: models.Location{City: "Springfield", State: "IL", Zip: "62701"},
	}
	for _, a := range admins {
		org.AdminIDs[a.ID.String()] = true
	}

	if err := db.Create(org).Error; err != nil {
		t.Fatalf("failed to create test organization: %v", err)
	}
	return org
}

// CreateTestUser creates an active password user with a push token.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	hash, err := auth.HashPassword("testpassword123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	id := uuid.New()
	user := &models.User{
		Base:         models.Base{ID: id},
		Email:        "test-" + id.String()[:8] + "@example.com",
		PasswordHash: hash,
		Name:         "Test User",
		AuthProvider: models.AuthProviderPassword,
		IsActive:     true,
		AlertRadius:  models.DefaultAlertRadiusMiles,
		PushToken:    "push-" + id.String(),
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestPlatformAdmin creates a user with platform admin rights.
func CreateTestPlatformAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	user := CreateTestUser(t, db)
	if err := db.Model(user).Update("is_platform_admin", true).Error; err != nil {
		t.Fatalf("failed to promote user: %v", err)
	}
	user.IsPlatformAdmin = true
	return user
}

// CreateTestGroup creates an active group under org.
func CreateTestGroup(t *testing.T, db *gorm.DB, orgID, name string) *models.Group {
	t.Helper()

	group := &models.Group{OrganizationID: orgID, Name: name, IsActive: true}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("failed to create test group: %v", err)
	}
	return group
}

// CreateTestFollow inserts a follow edge without touching follower_count.
func CreateTestFollow(t *testing.T, db *gorm.DB, userID uuid.UUID, orgID string) {
	t.Helper()
	if err := db.Create(&models.Follow{UserID: userID, OrganizationID: orgID}).Error; err != nil {
		t.Fatalf("failed to create follow: %v", err)
	}
}

// CreateTestJWTService creates a JWT service for testing
func CreateTestJWTService() *auth.JWTService {
	return auth.NewJWTService("test-secret-key-for-testing", 24*time.Hour)
}

// GenerateTestToken generates a valid JWT token for the given user
func GenerateTestToken(t *testing.T, jwtService *auth.JWTService, user *models.User) string {
	t.Helper()

	token, err := jwtService.GenerateToken(user.ID, user.Email, user.Role())
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return token
}

// ContextFor returns a context carrying the user's identity, as the auth
// middleware would build it.
func ContextFor(t *testing.T, user *models.User) context.Context {
	t.Helper()
	return auth.WithClaims(TestContext(t), &auth.Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role(),
	})
}

// AuthenticatedRequest creates an HTTP request with authentication
func AuthenticatedRequest(t *testing.T, method, path string, body interface{}, token string) *http.Request {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// UnauthenticatedRequest creates an HTTP request without authentication
func UnauthenticatedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	return AuthenticatedRequest(t, method, path, body, "")
}

// AssertStatus checks if the response has the expected status code
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if rr.Code != expected {
		t.Errorf("expected status %d, got %d. Body: %s", expected, rr.Code, rr.Body.String())
	}
}

// ParseJSONResponse parses the response body into the given struct
func ParseJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), v); err != nil {
		t.Fatalf("failed to parse response body: %v. Body: %s", err, rr.Body.String())
	}
}

// TestContext creates a context with a timeout for tests
func TestContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestSetup holds all the common test dependencies
type TestSetup struct {
	DB         *gorm.DB
	JWTService *auth.JWTService
	Admin      *models.User
	Org        *models.Organization
	Token      string
}

// NewTestContext creates a DB with one organization administered by Admin.
func NewTestContext(t *testing.T) *TestSetup {
	t.Helper()

	db := SetupTestDB(t)
	jwtService := CreateTestJWTService()
	admin := CreateTestUser(t, db)
	org := CreateTestOrg(t, db, "Test Organization", admin)

	return &TestSetup{
		DB:         db,
		JWTService: jwtService,
		Admin:      admin,
		Org:        org,
		Token:      GenerateTestToken(t, jwtService, admin),
	}
}
