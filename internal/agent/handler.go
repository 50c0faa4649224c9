package agent

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/monitor-judicial/whatsapp-agent/internal/api"
)

// Resetter forgets a stored conversation.
type Resetter interface {
	Reset(ctx context.Context, userID, conversationID string) error
}

// Handler serves the dashboard chat over JSON and WebSocket.
type Handler struct {
	agent         Processor
	resetter      Resetter
	rateLimiter   *RateLimiter
	maxBodySize   int64
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a chat handler. resetter may be nil, in which case the
// reset route is not registered.
func NewHandler(agent Processor, resetter Resetter, cfg Config, allowedOrigin string, isDev bool) *Handler {
	if cfg.MaxRequestBody <= 0 {
		cfg.MaxRequestBody = DefaultConfig().MaxRequestBody
	}
	return &Handler{
		agent:         agent,
		resetter:      resetter,
		rateLimiter:   NewRateLimiter(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window),
		maxBodySize:   cfg.MaxRequestBody,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// RegisterRoutes registers agent routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agent", func(r chi.Router) {
		r.Post("/chat", h.HandleChat)
		if h.resetter != nil {
			r.Delete("/conversations/{conversationID}", h.HandleReset)
		}
	})
	r.Get("/ws/agent", h.HandleWebSocket)
}

// Close releases handler resources.
func (h *Handler) Close() {
	h.rateLimiter.Close()
}

// HandleChat handles POST /api/agent/chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		api.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Message) == "" && req.AudioURL == "" {
		api.Error(w, http.StatusBadRequest, "message is required")
		return
	}

	// Rate-limit by user ID only so clients cannot bypass throttling by
	// rotating conversation IDs.
	if !h.rateLimiter.Allow(req.UserID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	req.Channel = ChannelHTTP
	req.RequestID = chiMiddleware.GetReqID(r.Context())

	slog.Info("Agent chat request",
		"user_id", req.UserID,
		"conversation_id", req.ConversationID,
		"message_length", len(req.Message),
		"has_audio", req.AudioURL != "")

	resp, err := h.agent.Process(r.Context(), req)
	if err != nil {
		status, msg := errorStatus(err)
		api.Error(w, status, msg)
		return
	}
	api.JSON(w, http.StatusOK, resp)
}

// HandleReset handles DELETE /api/agent/conversations/{conversationID}?user_id=.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	conversationID := chi.URLParam(r, "conversationID")
	if userID == "" || conversationID == "" {
		api.Error(w, http.StatusBadRequest, "user_id and conversation id are required")
		return
	}
	if err := h.resetter.Reset(r.Context(), userID, conversationID); err != nil {
		slog.Error("Failed to reset conversation", "user_id", userID, "conversation_id", conversationID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to reset conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// wsMessage is an inbound WebSocket frame. A frame that is not JSON is
// treated as the message text.
type wsMessage struct {
	Message  string `json:"message"`
	AudioURL string `json:"audio_url,omitempty"`
}

// HandleWebSocket handles GET /ws/agent?user_id=&conversation_id=.
// Each text frame is one user message and each reply is one JSON frame.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	conversationID := r.URL.Query().Get("conversation_id")
	if userID == "" {
		api.Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if conversationID == "" {
		conversationID = "ws-" + userID
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	slog.Info("Agent WebSocket connected", "user_id", userID, "conversation_id", conversationID)
	ctx := r.Context()
	reqID := chiMiddleware.GetReqID(ctx)

	for {
		typ, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "user_id", userID)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			msg = wsMessage{Message: string(data)}
		}
		if strings.TrimSpace(msg.Message) == "" && msg.AudioURL == "" {
			continue
		}

		if !h.rateLimiter.Allow(userID) {
			if err := writeJSON(ctx, ws, map[string]string{"error": "rate limit exceeded"}); err != nil {
				return
			}
			continue
		}

		resp, err := h.agent.Process(ctx, ChatRequest{
			UserID:         userID,
			ConversationID: conversationID,
			Message:        msg.Message,
			AudioURL:       msg.AudioURL,
			Channel:        ChannelWebSocket,
			RequestID:      reqID,
		})
		var out any = resp
		if err != nil {
			_, text := errorStatus(err)
			out = map[string]string{"error": text}
		}
		if err := writeJSON(ctx, ws, out); err != nil {
			slog.Warn("Failed to write WebSocket reply", "error", err, "user_id", userID)
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" || origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnknownUser):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, "message is required"
	}
	slog.Error("Agent request failed", "error", err)
	return http.StatusInternalServerError, "internal error"
}
