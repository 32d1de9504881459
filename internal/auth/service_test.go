package auth_test

import (
	"testing"

	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/database/models"
	"github.com/hugh/chimeo/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*auth.Service, *testutil.TestSetup) {
	t.Helper()
	ts := testutil.NewTestContext(t)
	return auth.NewService(ts.DB, ts.JWTService, []string{"gmail.com", "googlemail.com"}), ts
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.TestContext(t)

	resp, err := svc.Register(ctx, auth.RegisterInput{
		Email:    "  Person@Example.com ",
		Password: "correct-horse",
		Name:     "Person",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "person@example.com", resp.User.Email)
	assert.Equal(t, models.DefaultAlertRadiusMiles, resp.User.AlertRadius)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := svc.Register(ctx, auth.RegisterInput{Email: "person@example.com", Password: "x"})
		assert.ErrorIs(t, err, auth.ErrUserExists)
	})

	t.Run("login succeeds", func(t *testing.T) {
		resp, err := svc.Login(ctx, auth.LoginInput{Email: "PERSON@example.com", Password: "correct-horse"})
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.LoginInput{Email: "person@example.com", Password: "nope"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.LoginInput{Email: "ghost@example.com", Password: "nope"})
		assert.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}

func TestService_Provision(t *testing.T) {
	svc, ts := newService(t)
	ctx := testutil.TestContext(t)

	t.Run("existing account is linked", func(t *testing.T) {
		res, err := svc.Provision(ctx, ts.Admin.Email, "Someone")
		require.NoError(t, err)
		assert.True(t, res.Existing)
		assert.Equal(t, ts.Admin.ID, res.User.ID)
		assert.Empty(t, res.SetupToken)
	})

	t.Run("federated domain creates google account", func(t *testing.T) {
		res, err := svc.Provision(ctx, "pastor@gmail.com", "Pastor")
		require.NoError(t, err)
		assert.True(t, res.Federated)
		assert.Empty(t, res.SetupToken)
		assert.Equal(t, models.AuthProviderGoogle, res.User.AuthProvider)
		assert.False(t, res.User.NeedsPasswordSetup)
		assert.Empty(t, res.User.PasswordHash)
	})

	t.Run("other domain needs password setup", func(t *testing.T) {
		res, err := svc.Provision(ctx, "owner@velocitypt.com", "Owner")
		require.NoError(t, err)
		assert.False(t, res.Federated)
		assert.NotEmpty(t, res.SetupToken)
		assert.True(t, res.User.NeedsPasswordSetup)
		assert.Empty(t, res.User.PasswordHash)
		assert.NotEqual(t, res.SetupToken, res.User.SetupTokenHash)

		_, err = svc.Login(ctx, auth.LoginInput{Email: "owner@velocitypt.com", Password: res.SetupToken})
		assert.ErrorIs(t, err, auth.ErrPasswordSetupRequired)

		_, err = svc.SetupPassword(ctx, "owner@velocitypt.com", "wrong-token", "new-password")
		assert.ErrorIs(t, err, auth.ErrInvalidSetupToken)

		resp, err := svc.SetupPassword(ctx, "owner@velocitypt.com", res.SetupToken, "new-password")
		require.NoError(t, err)
		assert.NotEmpty(t, resp.Token)
		assert.False(t, resp.User.NeedsPasswordSetup)

		_, err = svc.SetupPassword(ctx, "owner@velocitypt.com", res.SetupToken, "again")
		assert.ErrorIs(t, err, auth.ErrInvalidSetupToken)

		_, err = svc.Login(ctx, auth.LoginInput{Email: "owner@velocitypt.com", Password: "new-password"})
		assert.NoError(t, err)
	})
}

func TestService_SignInFederated(t *testing.T) {
	svc, _ := newService(t)
	ctx := testutil.TestContext(t)

	t.Run("creates account on first sign-in", func(t *testing.T) {
		resp, err := svc.SignInFederated(ctx, "new@gmail.com", "New")
		require.NoError(t, err)
		assert.Equal(t, models.AuthProviderGoogle, resp.User.AuthProvider)

		_, err = svc.Login(ctx, auth.LoginInput{Email: "new@gmail.com", Password: ""})
		assert.ErrorIs(t, err, auth.ErrFederatedAccount)
	})

	t.Run("converts placeholder account", func(t *testing.T) {
		res, err := svc.Provision(ctx, "clerk@city.gov", "Clerk")
		require.NoError(t, err)
		require.True(t, res.User.NeedsPasswordSetup)

		resp, err := svc.SignInFederated(ctx, "clerk@city.gov", "Clerk")
		require.NoError(t, err)
		assert.Equal(t, res.User.ID, resp.User.ID)
		assert.False(t, resp.User.NeedsPasswordSetup)
	})
}

func TestService_ChangePassword(t *testing.T) {
	svc, ts := newService(t)
	ctx := testutil.TestContext(t)

	err := svc.ChangePassword(ctx, ts.Admin.ID, "wrong", "next-password")
	assert.ErrorIs(t, err, auth.ErrInvalidCredentials)

	require.NoError(t, svc.ChangePassword(ctx, ts.Admin.ID, "testpassword123", "next-password"))
	_, err = svc.Login(ctx, auth.LoginInput{Email: ts.Admin.Email, Password: "next-password"})
	assert.NoError(t, err)
}

func TestService_PushTokenAndPreferences(t *testing.T) {
	svc, ts := newService(t)
	ctx := testutil.TestContext(t)

	require.NoError(t, svc.RegisterPushToken(ctx, ts.Admin.ID, " device-token "))
	user, err := svc.GetUserByID(ctx, ts.Admin.ID)
	require.NoError(t, err)
	assert.Equal(t, "device-token", user.PushToken)
	assert.NotNil(t, user.PushTokenUpdatedAt)

	radius := 25.0
	updated, err := svc.UpdatePreferences(ctx, ts.Admin.ID, auth.PreferencesInput{
		AlertRadius: &radius,
		Preferences: &models.NotificationPreferences{
			IncidentTypes:   []string{"weather"},
			QuietHoursStart: "22:00",
			QuietHoursEnd:   "07:00",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 25.0, updated.AlertRadius)

	reloaded, err := svc.GetUserByID(ctx, ts.Admin.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"weather"}, reloaded.Preferences.IncidentTypes)
	assert.Equal(t, "22:00", reloaded.Preferences.QuietHoursStart)

	t.Run("rejects bad quiet hours", func(t *testing.T) {
		_, err := svc.UpdatePreferences(ctx, ts.Admin.ID, auth.PreferencesInput{
			Preferences: &models.NotificationPreferences{QuietHoursStart: "late"},
		})
		assert.Error(t, err)
	})
}
