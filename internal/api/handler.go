// Package api provides the service's shared HTTP handlers and JSON helpers.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
)

const defaultHealthTimeout = 2 * time.Second

// Store is the subset of the repository the shared handlers need.
type Store interface {
	Ping(ctx context.Context) error
	GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error)
}

// Info describes the running service to the dashboard.
type Info struct {
	Providers      []string `json:"providers"`
	CatalogVersion string   `json:"catalog_version"`
	Environment    string   `json:"environment"`
	Channels       []string `json:"channels"`
}

// Handler serves health, configuration and profile endpoints.
type Handler struct {
	store   Store
	info    Info
	timeout time.Duration
}

// NewHandler creates a new Handler.
func NewHandler(store Store, info Info) *Handler {
	return &Handler{store: store, info: info, timeout: defaultHealthTimeout}
}

// RegisterRoutes registers the shared routes. Health is public; the rest
// sit behind whatever middleware the caller's router applies.
func (h *Handler) RegisterRoutes(public, protected chi.Router) {
	public.Get("/api/health", h.Health)
	protected.Get("/api/config", h.GetConfig)
	protected.Get("/api/me", h.GetMe)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health reports whether the store is reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "store": "unreachable"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok", "store": "ok"})
}

// GetConfig returns the service description for the dashboard.
func (h *Handler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, h.info)
}

// GetMe returns what the agent knows about a lawyer: display name,
// timezone and whether WhatsApp reminders can reach them.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}

	profile, err := h.store.GetUserProfile(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load user profile", "user_id", userID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load profile")
		return
	}
	if profile == nil {
		Error(w, http.StatusNotFound, "user not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"user_id":        profile.UserID,
		"display_name":   profile.DisplayName(),
		"timezone":       profile.Timezone,
		"whatsapp_ready": profile.HasPhone(),
	})
}
