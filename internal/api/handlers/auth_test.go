package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/hugh/chimeo/internal/api/handlers"
	"github.com/hugh/chimeo/internal/api/middleware"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/internal/testutil"
	"github.com/hugh/chimeo/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeGoogle(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(auth.GoogleUser{
			Email:         "volunteer@gmail.com",
			EmailVerified: true,
			Name:          "Volunteer",
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newAuthHandler(t *testing.T, google *auth.GoogleOAuth) (*handlers.AuthHandler, *auth.Service) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	svc := auth.NewService(db, testutil.CreateTestJWTService(), []string{"gmail.com"})
	return handlers.NewAuthHandler(svc, google, time.Hour, true, util.DiscardLogger()), svc
}

func cookieNamed(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthHandler_GoogleFlow(t *testing.T) {
	srv := fakeGoogle(t)
	google := auth.NewGoogleOAuth("client", "secret", "http://localhost/api/v1/auth/google/callback").
		WithEndpoints(srv.URL+"/auth", srv.URL+"/token", srv.URL+"/userinfo")
	h, svc := newAuthHandler(t, google)

	rr := httptest.NewRecorder()
	h.GoogleLogin(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login", nil))
	testutil.AssertStatus(t, rr, http.StatusFound)

	state := cookieNamed(rr, "oauth_state")
	require.NotNil(t, state)
	assert.True(t, state.HttpOnly)
	assert.True(t, state.Secure)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))

	callback := func(query string, withState bool) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback?"+query, nil)
		if withState {
			req.AddCookie(&http.Cookie{Name: "oauth_state", Value: state.Value})
		}
		rr := httptest.NewRecorder()
		h.GoogleCallback(rr, req)
		return rr
	}

	t.Run("missing state cookie", func(t *testing.T) {
		rr := callback("state="+state.Value+"&code=good-code", false)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("state mismatch", func(t *testing.T) {
		rr := callback("state=forged&code=good-code", true)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("user cancelled", func(t *testing.T) {
		rr := callback("state="+state.Value+"&error=access_denied", true)
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	})

	t.Run("missing code", func(t *testing.T) {
		rr := callback("state="+state.Value, true)
		testutil.AssertStatus(t, rr, http.StatusBadRequest)
	})

	t.Run("bad code", func(t *testing.T) {
		rr := callback("state="+state.Value+"&code=bad-code", true)
		testutil.AssertStatus(t, rr, http.StatusBadGateway)
	})

	t.Run("success", func(t *testing.T) {
		rr := callback("state="+state.Value+"&code=good-code", true)
		testutil.AssertStatus(t, rr, http.StatusOK)

		token := cookieNamed(rr, middleware.TokenCookie)
		require.NotNil(t, token)
		assert.NotEmpty(t, token.Value)

		cleared := cookieNamed(rr, "oauth_state")
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)

		user, err := svc.GetUserByEmail(testutil.TestContext(t), "volunteer@gmail.com")
		require.NoError(t, err)
		assert.Equal(t, "Volunteer", user.Name)
	})
}

func TestAuthHandler_GoogleDisabled(t *testing.T) {
	h, _ := newAuthHandler(t, nil)

	rr := httptest.NewRecorder()
	h.GoogleCallback(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/callback", nil))
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestAuthHandler_SetupPassword(t *testing.T) {
	h, svc := newAuthHandler(t, nil)
	ctx := testutil.TestContext(t)

	res, err := svc.Provision(ctx, "office@smallchurch.org", "Office")
	require.NoError(t, err)
	require.NotEmpty(t, res.SetupToken)

	setup := func(token, password string) *httptest.ResponseRecorder {
		rr := httptest.NewRecorder()
		h.SetupPassword(rr, testutil.UnauthenticatedRequest(t, http.MethodPost, "/api/v1/auth/setup-password",
			map[string]string{"email": "office@smallchurch.org", "token": token, "password": password}))
		return rr
	}

	testutil.AssertStatus(t, setup(res.SetupToken, "short"), http.StatusBadRequest)
	testutil.AssertStatus(t, setup("wrong-token", "newpassword1"), http.StatusUnauthorized)

	rr := setup(res.SetupToken, "newpassword1")
	testutil.AssertStatus(t, rr, http.StatusOK)
	require.NotNil(t, cookieNamed(rr, middleware.TokenCookie))

	// The token is single use.
	testutil.AssertStatus(t, setup(res.SetupToken, "newpassword1"), http.StatusUnauthorized)

	rr = httptest.NewRecorder()
	h.Login(rr, testutil.UnauthenticatedRequest(t, http.MethodPost, "/api/v1/auth/login",
		map[string]string{"email": "office@smallchurch.org", "password": "newpassword1"}))
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestAuthHandler_Logout(t *testing.T) {
	h, _ := newAuthHandler(t, nil)

	rr := httptest.NewRecorder()
	h.Logout(rr, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil))
	testutil.AssertStatus(t, rr, http.StatusOK)

	c := cookieNamed(rr, middleware.TokenCookie)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

func TestAuthHandler_InvalidBody(t *testing.T) {
	h, _ := newAuthHandler(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	req.Body = http.NoBody
	rr := httptest.NewRecorder()
	h.Login(rr, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
}
