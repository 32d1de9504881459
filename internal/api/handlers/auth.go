package handlers

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/hugh/chimeo/internal/api/dto"
	"github.com/hugh/chimeo/internal/api/middleware"
	"github.com/hugh/chimeo/internal/auth"
	"github.com/hugh/chimeo/pkg/crypto"
)

const oauthStateCookie = "oauth_state"

type AuthHandler struct {
	authService   *auth.Service
	google        *auth.GoogleOAuth
	tokenTTL      time.Duration
	secureCookies bool
	logger        *slog.Logger
}

// NewAuthHandler wires the auth endpoints. google may be nil when Google
// sign-in is not configured.
func NewAuthHandler(authService *auth.Service, google *auth.GoogleOAuth, tokenTTL time.Duration, secureCookies bool, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		authService:   authService,
		google:        google,
		tokenTTL:      tokenTTL,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

func (h *AuthHandler) setTokenCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(h.tokenTTL.Seconds()),
	})
}

func (h *AuthHandler) respond(w http.ResponseWriter, status int, resp *auth.AuthResponse) {
	h.setTokenCookie(w, resp.Token)
	writeJSON(w, status, dto.AuthResponse{Token: resp.Token, User: dto.NewUserDTO(resp.User)})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	resp, err := h.authService.Register(r.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		writeError(w, err, "Registration failed")
		return
	}

	h.respond(w, http.StatusCreated, resp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	resp, err := h.authService.Login(r.Context(), auth.LoginInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		writeError(w, err, "Login failed")
		return
	}

	h.respond(w, http.StatusOK, resp)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})

	writeJSON(w, http.StatusOK, dto.SuccessResponse{Message: "Logged out"})
}

// SetupPassword activates an account created for an organization request.
func (h *AuthHandler) SetupPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.SetupPasswordRequest
	if !decodeJSON(w, r, &req) || !validate(w, req.Validate()) {
		return
	}

	resp, err := h.authService.SetupPassword(r.Context(), req.Email, req.Token, req.Password)
	if err != nil {
		writeError(w, err, "Password setup failed")
		return
	}

	h.respond(w, http.StatusOK, resp)
}

// GoogleLogin redirects to Google with a fresh state bound to a cookie.
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Google sign-in is not configured"})
		return
	}

	state, err := crypto.RandomToken(24)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Error: "Could not start sign-in"})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/api/v1/auth/google",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   600,
	})
	http.Redirect(w, r, h.google.AuthCodeURL(state), http.StatusFound)
}

func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	if h.google == nil {
		writeJSON(w, http.StatusNotFound, dto.ErrorResponse{Error: "Google sign-in is not configured"})
		return
	}

	cookie, err := r.Cookie(oauthStateCookie)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Invalid OAuth state"})
		return
	}
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/api/v1/auth/google", MaxAge: -1})

	if reason := r.URL.Query().Get("error"); reason != "" {
		writeJSON(w, http.StatusUnauthorized, dto.ErrorResponse{Error: "Google sign-in was cancelled"})
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "Missing authorization code"})
		return
	}

	profile, err := h.google.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Warn("google exchange failed", "error", err)
		writeError(w, err, "Google sign-in failed")
		return
	}

	resp, err := h.authService.SignInFederated(r.Context(), profile.Email, profile.Name)
	if err != nil {
		writeError(w, err, "Google sign-in failed")
		return
	}

	h.respond(w, http.StatusOK, resp)
}
