package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/xid"

	"github.com/mikahagenbeek692/MovieManager/internal/apperror"
	"github.com/mikahagenbeek692/MovieManager/internal/auth"
	"github.com/mikahagenbeek692/MovieManager/internal/events"
	"github.com/mikahagenbeek692/MovieManager/internal/middleware"
	"github.com/mikahagenbeek692/MovieManager/internal/service"
)

// ClientChannelHeader names the event channel of the tab making the request.
// Login, logout and saves are published there so the other tabs on the same
// device refresh themselves.
const ClientChannelHeader = "X-Client-Channel"

const oauthStateCookie = "oauth_state"

// EventPublisher is the part of events.Hub the handlers need.
type EventPublisher interface {
	Publish(channel string, e events.Event) int
}

// publish sends an event to the caller's channel, if it named one.
func publish(p EventPublisher, r *http.Request, t events.Type, username string) {
	if p == nil {
		return
	}
	p.Publish(r.Header.Get(ClientChannelHeader), events.Event{Type: t, Username: username})
}

// AuthHandler manages the session lifecycle.
//
// HANDLER RESPONSIBILITIES:
//   - HandleRegister       → create a local account
//   - HandleLogin          → check the password, set the JWT cookie
//   - HandleLogout         → clear the JWT cookie
//   - HandleMe / HandleHome → who is logged in
//   - HandleCSRFToken      → issue the double-submit token
//   - HandleGitHubLogin / HandleGitHubCallback → optional GitHub sign-in
type AuthHandler struct {
	auth   *service.AuthService
	tokens *auth.TokenService
	github *auth.GitHubProvider // nil when GitHub sign-in is not configured
	events EventPublisher
	logger *slog.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	tokens *auth.TokenService,
	github *auth.GitHubProvider,
	publisher EventPublisher,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		auth:   authService,
		tokens: tokens,
		github: github,
		events: publisher,
		logger: logger,
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
}

// HandleRegister creates an account.
//
// HTTP: POST /register {"username", "password", "email"}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if _, err := h.auth.Register(r.Context(), req.Username, req.Password, req.Email); err != nil {
		failed(w, h.logger, "register", err)
		return
	}
	writeJSON(w, http.StatusCreated, MessageResponse{Message: "User registered successfully"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message  string `json:"message"`
	Username string `json:"username"`
}

// HandleLogin checks the credentials and sets the session cookie.
//
// HTTP: POST /login {"username", "password"}
// 404 unknown user, 401 wrong password, 429 from the rate limiter in front.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		failed(w, h.logger, "login", err)
		return
	}

	h.setSessionCookie(w, res.Token)
	publish(h.events, r, events.TypeLogin, res.User.Username)
	writeJSON(w, http.StatusOK, loginResponse{Message: "Login successful", Username: res.User.Username})
}

// HandleLogout clears the session cookie.
//
// HTTP: POST /logout
//
// The JWT stays valid until it expires; without the cookie the browser can
// no longer send it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	username := ""
	if id, ok := auth.IdentityFromContext(r.Context()); ok {
		username = id.Username
	}
	publish(h.events, r, events.TypeLogout, username)
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Logged out successfully"})
}

type meResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// HandleMe returns the logged-in user. The client calls it on start-up and
// after every login/logout event to re-derive its session.
//
// HTTP: GET /me (RequireAuth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("Not logged in"))
		return
	}

	user, err := h.auth.Me(r.Context(), id)
	if err != nil {
		failed(w, h.logger, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{ID: user.ID, Username: user.Username})
}

// HandleHome greets the logged-in user.
//
// HTTP: GET /home (RequireAuth)
func (h *AuthHandler) HandleHome(w http.ResponseWriter, r *http.Request) {
	username, err := sessionUsername(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: fmt.Sprintf("Welcome, %s!", username)})
}

// HandleCSRFToken issues a fresh CSRF token, both as a cookie and in the
// body. Mutating requests must echo it in the X-CSRF-Token header.
//
// HTTP: GET /csrf-token
func (h *AuthHandler) HandleCSRFToken(w http.ResponseWriter, r *http.Request) {
	token := middleware.NewCSRFToken()
	middleware.SetCSRFCookie(w, token)
	writeJSON(w, http.StatusOK, map[string]string{"csrfToken": token})
}

// HandleGitHubLogin redirects the browser to GitHub's authorization page.
//
// HTTP: GET /auth/github/login
//
// CSRF PROTECTION VIA STATE:
// A random state goes into a short-lived HttpOnly cookie and into the
// authorization URL. The callback only proceeds when both match.
func (h *AuthHandler) HandleGitHubLogin(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("login provider", "github"))
		return
	}

	state := xid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.github.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleGitHubCallback completes the OAuth flow.
//
// HTTP: GET /auth/github/callback?code=xxx&state=yyy
//
// FLOW:
//  1. Validate the state parameter (CSRF check)
//  2. Exchange the code for a GitHub profile
//  3. Find or create the matching account
//  4. Set the JWT cookie and redirect to the app
func (h *AuthHandler) HandleGitHubCallback(w http.ResponseWriter, r *http.Request) {
	if h.github == nil {
		writeError(w, apperror.NotFound("login provider", "github"))
		return
	}

	// --- Step 1: state ---
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || stateCookie.Value == "" || r.URL.Query().Get("state") != stateCookie.Value {
		h.logger.Warn("auth callback: invalid OAuth state")
		writeError(w, apperror.ValidationFailed("state", "Invalid OAuth state"))
		return
	}
	// Single use.
	http.SetCookie(w, &http.Cookie{Name: oauthStateCookie, Value: "", Path: "/", MaxAge: -1})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		h.logger.Info("auth callback: user denied authorization", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, apperror.ValidationFailed("code", "Missing OAuth code"))
		return
	}

	// --- Step 2: exchange ---
	ghUser, err := h.github.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("auth callback: GitHub exchange failed", slog.String("error", err.Error()))
		writeError(w, apperror.Unauthorized("GitHub authentication failed"))
		return
	}

	// --- Step 3: account ---
	res, err := h.auth.LoginWithGitHub(r.Context(), ghUser)
	if err != nil {
		failed(w, h.logger, "github login", err)
		return
	}

	// --- Step 4: cookie + redirect ---
	h.setSessionCookie(w, res.Token)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// setSessionCookie stores the JWT in an HttpOnly cookie that expires with
// the token. Secure should be set when served over HTTPS.
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokens.TTL() / time.Second),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
