// Package api serves a read-only JSON feed of recent notifications for
// dashboards.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/steveyegge/vcwatch/internal/store"
)

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// RecordReader is the part of store.Store the feed needs.
type RecordReader interface {
	Read(q store.Query) ([]store.Record, error)
}

// Handler serves the notification feed.
type Handler struct {
	records RecordReader
	logger  *slog.Logger
}

// NotificationsResponse is the body of GET /api/notifications.
type NotificationsResponse struct {
	Notifications []store.Record `json:"notifications"`
	Count         int            `json:"count"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// NewHandler creates a handler reading from records.
func NewHandler(records RecordReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{records: records, logger: logger}
}

// Mount registers the routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/health", h.health)
	r.Get("/api/notifications", h.listNotifications)
}

// Router returns a router with the routes and standard middleware.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	h.Mount(r)
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}

	recs, err := h.records.Read(store.Query{Limit: limit, AgentID: r.URL.Query().Get("agent")})
	if err != nil {
		h.logger.Warn("failed to read notifications", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read notifications", err.Error())
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, http.StatusOK, NotificationsResponse{Notifications: recs, Count: len(recs)})
}

func parseLimit(r *http.Request) (int, error) {
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			return 0, err
		}
		limit = value
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, ErrorResponse{Error: message, Details: details})
}
