package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"fitclub-access/internal/session"
)

func (h *Handler) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.sessions.Stats(r.Context(), h.statsRecent)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type userSessionsResponse struct {
	UserID   string            `json:"user_id"`
	Sessions []session.Session `json:"sessions"`
}

func (h *Handler) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	list, err := h.sessions.SessionsForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}
	if list == nil {
		list = []session.Session{}
	}
	writeJSON(w, http.StatusOK, userSessionsResponse{UserID: userID, Sessions: list})
}

func (h *Handler) handleTerminateUserSessions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	n, err := h.sessions.TerminateAllForUser(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "terminated": n})
}

func (h *Handler) handleAuditList(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeError(w, http.StatusNotImplemented, "unavailable", "audit log is not configured")
		return
	}
	limit := queryInt32(r, "limit", 50)
	offset := queryInt32(r, "offset", 0)
	entries, err := h.audit.ListRecent(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "something went wrong")
		return
	}
	type auditEntry struct {
		ID        string `json:"id"`
		UserID    string `json:"user_id,omitempty"`
		UserType  string `json:"user_type"`
		Email     string `json:"email"`
		Action    string `json:"action"`
		Details   string `json:"details,omitempty"`
		CreatedAt string `json:"created_at"`
	}
	out := make([]auditEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, auditEntry{
			ID:        e.ID,
			UserID:    e.UserID,
			UserType:  e.UserType,
			Email:     e.Email,
			Action:    string(e.Action),
			Details:   e.Details,
			CreatedAt: e.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

func queryInt32(r *http.Request, key string, def int32) int32 {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}
