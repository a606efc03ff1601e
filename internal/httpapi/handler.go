// Package httpapi exposes the access service over HTTP: login/logout, the
// password-reset flow, and admin views over sessions and the reset audit
// trail. Handlers own cookies and status codes; all lifecycle rules live in
// the auth, session, and reset packages.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"fitclub-access/internal/auth"
	auditrepo "fitclub-access/internal/audit/repository"
	"fitclub-access/internal/reset"
	"fitclub-access/internal/session"
	userdomain "fitclub-access/internal/user/domain"
)

// resetRequestedMessage is the only reset-request response body the public API
// produces, whether or not the account exists. The real outcome is in the
// audit log.
const resetRequestedMessage = "If an account with that email exists, password reset instructions have been sent."

// Pinger reports backing-store health for the readiness endpoint (e.g.
// *pgxpool.Pool).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the HTTP surface's dependencies.
type Handler struct {
	auth     *auth.Service
	sessions session.Store
	resets   *reset.Service
	audit    auditrepo.Repository
	pinger   Pinger

	sessionMaxAge time.Duration
	statsRecent   int
	// devTokenInResponse exposes the raw reset token in the request-reset
	// response. Config refuses this flag in production.
	devTokenInResponse bool
}

// Options configures a Handler.
type Options struct {
	Auth               *auth.Service
	Sessions           session.Store
	Resets             *reset.Service
	Audit              auditrepo.Repository
	Pinger             Pinger
	SessionMaxAge      time.Duration
	StatsRecent        int
	DevTokenInResponse bool
}

// NewHandler returns the HTTP handler for the access service.
func NewHandler(opts Options) *Handler {
	if opts.SessionMaxAge <= 0 {
		opts.SessionMaxAge = session.DefaultMaxAge
	}
	if opts.StatsRecent <= 0 {
		opts.StatsRecent = 10
	}
	return &Handler{
		auth:               opts.Auth,
		sessions:           opts.Sessions,
		resets:             opts.Resets,
		audit:              opts.Audit,
		pinger:             opts.Pinger,
		sessionMaxAge:      opts.SessionMaxAge,
		statsRecent:        opts.StatsRecent,
		devTokenInResponse: opts.DevTokenInResponse,
	}
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/logout", h.handleLogout)
		r.With(h.requireSession).Get("/auth/me", h.handleMe)

		r.Post("/password-reset/request", h.handleResetRequest)
		r.Get("/password-reset/verify", h.handleResetVerify)
		r.Post("/password-reset/confirm", h.handleResetConfirm)

		r.Route("/admin", func(r chi.Router) {
			r.Use(h.requireSession, h.requireAdmin)
			r.Get("/sessions/stats", h.handleSessionStats)
			r.Get("/users/{userID}/sessions", h.handleUserSessions)
			r.Post("/users/{userID}/sessions/terminate", h.handleTerminateUserSessions)
			r.Get("/audit/password-resets", h.handleAuditList)
		})
	})

	return r
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserType string `json:"user_type"`
}

type sessionResponse struct {
	User      session.User `json:"user"`
	CreatedAt time.Time    `json:"created_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userType, err := userdomain.ParseType(strings.TrimSpace(req.UserType))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_type", err.Error())
		return
	}

	id, sess, err := h.auth.Login(r.Context(), req.Email, req.Password, userType)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   int(h.sessionMaxAge / time.Second),
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		User:      sess.User,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt(h.sessionMaxAge),
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
			return
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	sess, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "sign in to continue")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		User:      sess.User,
		CreatedAt: sess.CreatedAt,
		ExpiresAt: sess.ExpiresAt(h.sessionMaxAge),
	})
}

type resetRequestBody struct {
	Email    string `json:"email"`
	UserType string `json:"user_type"`
}

type resetRequestResponse struct {
	Message string `json:"message"`
	// Dev-mode only; never populated in production.
	ResetToken string     `json:"reset_token,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestBody
	if !decodeBody(w, r, &req) {
		return
	}
	userType, err := userdomain.ParseType(strings.TrimSpace(req.UserType))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_type", err.Error())
		return
	}

	res, err := h.resets.RequestReset(r.Context(), strings.TrimSpace(req.Email), userType)
	if err != nil {
		// Unknown and deactivated accounts get the same generic response as
		// success, so the endpoint cannot be used to probe for valid emails.
		if errors.Is(err, reset.ErrNotFound) || errors.Is(err, reset.ErrDeactivated) {
			writeJSON(w, http.StatusOK, resetRequestResponse{Message: resetRequestedMessage})
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}

	resp := resetRequestResponse{Message: resetRequestedMessage}
	if h.devTokenInResponse {
		resp.ResetToken = res.Token
		resp.ExpiresAt = &res.ExpiresAt
	}
	writeJSON(w, http.StatusOK, resp)
}

type resetVerifyResponse struct {
	Valid bool   `json:"valid"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

func (h *Handler) handleResetVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	userType, err := userdomain.ParseType(r.URL.Query().Get("user_type"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_type", err.Error())
		return
	}

	res, err := h.resets.VerifyToken(r.Context(), token, userType)
	if err != nil {
		writeResetError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resetVerifyResponse{Valid: true, Email: res.Email, Name: res.Name})
}

type resetConfirmBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
	UserType    string `json:"user_type"`
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmBody
	if !decodeBody(w, r, &req) {
		return
	}
	userType, err := userdomain.ParseType(strings.TrimSpace(req.UserType))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_user_type", err.Error())
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, "weak_password", "password must be at least 8 characters")
		return
	}

	if err := h.resets.ResetPassword(r.Context(), req.Token, req.NewPassword, userType); err != nil {
		writeResetError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeResetError maps reset sentinel errors to distinct response codes.
// invalid and expired are deliberately distinguishable here: a user holding a
// stale link can be offered a fresh request.
func writeResetError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, reset.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "invalid_token", "this reset link is not valid")
	case errors.Is(err, reset.ErrExpiredToken):
		writeError(w, http.StatusGone, "expired_token", "this reset link has expired; request a new one")
	default:
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "unhealthy", "database unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}
