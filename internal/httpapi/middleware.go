package httpapi

import (
	"context"
	"net/http"

	"fitclub-access/internal/session"
)

// SessionCookie is the cookie carrying the opaque session identifier. The
// session store itself never touches cookies; that boundary lives here.
const SessionCookie = "club_session"

type contextKey string

const sessionContextKey contextKey = "session"

// sessionFromContext returns the authenticated session set by requireSession.
func sessionFromContext(ctx context.Context) (*session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(*session.Session)
	return s, ok
}

// requireSession resolves the session cookie against the store and rejects the
// request when the session is missing or expired. A store failure is an
// internal error, distinct from unauthenticated.
func (h *Handler) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "sign in to continue")
			return
		}
		sess, ok, err := h.sessions.Get(r.Context(), cookie.Value)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "session expired, sign in again")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionContextKey, sess)))
	})
}

// requireAdmin allows only sessions whose snapshot carries the admin role.
// Must be nested inside requireSession.
func (h *Handler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := sessionFromContext(r.Context())
		if !ok || sess.User.Role != "admin" {
			writeError(w, http.StatusForbidden, "forbidden", "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
