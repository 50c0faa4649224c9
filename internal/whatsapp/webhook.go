// Package whatsapp receives Twilio WhatsApp webhooks and answers them
// with TwiML.
package whatsapp

import (
	"context"
	"encoding/xml"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/monitor-judicial/whatsapp-agent/internal/agent"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
)

const (
	unregisteredReply = "Tu número no está registrado en Monitor Judicial. Agrega tu teléfono en tu perfil para usar el asistente."
	errorReply        = "Tuve un problema para procesar tu mensaje. Intenta de nuevo en unos minutos."
	unsupportedReply  = "Por ahora solo puedo leer mensajes de texto y notas de voz."
	maxFormBytes      = 1 << 20
)

// ProfileResolver finds the lawyer who owns a phone number.
type ProfileResolver interface {
	GetUserProfileByPhone(ctx context.Context, phone string) (*domain.UserProfile, error)
}

// Config configures the webhook.
type Config struct {
	// AuthToken is the Twilio auth token used to check signatures.
	AuthToken string
	// PublicURL is the webhook URL as Twilio sees it. When empty it is
	// rebuilt from the request.
	PublicURL string
	// ValidateSignature rejects unsigned or badly signed requests.
	ValidateSignature bool
}

// Handler serves the Twilio webhook.
type Handler struct {
	agent    agent.Processor
	profiles ProfileResolver
	cfg      Config
}

// NewHandler creates a webhook handler.
func NewHandler(processor agent.Processor, profiles ProfileResolver, cfg Config) *Handler {
	return &Handler{agent: processor, profiles: profiles, cfg: cfg}
}

// RegisterRoutes registers the webhook route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/whatsapp", h.HandleMessage)
}

type twiml struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// HandleMessage handles one inbound WhatsApp message.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormBytes)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	if h.cfg.ValidateSignature {
		sig := r.Header.Get(SignatureHeader)
		if !ValidSignature(h.cfg.AuthToken, h.webhookURL(r), r.PostForm, sig) {
			slog.Warn("Rejected WhatsApp webhook with invalid signature",
				"remote_addr", r.RemoteAddr)
			http.Error(w, "invalid signature", http.StatusForbidden)
			return
		}
	}

	from := r.PostForm.Get("From")
	if from == "" {
		http.Error(w, "From is required", http.StatusBadRequest)
		return
	}
	ctx := r.Context()

	profile, err := h.profiles.GetUserProfileByPhone(ctx, from)
	if err != nil {
		slog.Error("Failed to resolve WhatsApp sender", "error", err)
		writeTwiML(w, errorReply)
		return
	}
	if profile == nil {
		slog.Info("WhatsApp message from unregistered number", "phone_key", domain.PhoneKey(from))
		writeTwiML(w, unregisteredReply)
		return
	}

	body := strings.TrimSpace(r.PostForm.Get("Body"))
	audioURL := audioMedia(r.PostForm.Get)
	if body == "" && audioURL == "" {
		writeTwiML(w, unsupportedReply)
		return
	}

	resp, err := h.agent.Process(ctx, agent.ChatRequest{
		UserID:         profile.UserID,
		ConversationID: from,
		Message:        body,
		AudioURL:       audioURL,
		Channel:        agent.ChannelWhatsApp,
		RequestID:      chiMiddleware.GetReqID(ctx),
	})
	if err != nil {
		slog.Error("WhatsApp turn failed", "user_id", profile.UserID, "error", err)
		writeTwiML(w, errorReply)
		return
	}
	writeTwiML(w, agent.FormatReply(resp.Reply))
}

// audioMedia returns the first audio attachment's URL.
func audioMedia(get func(string) string) string {
	n, err := strconv.Atoi(get("NumMedia"))
	if err != nil {
		return ""
	}
	for i := 0; i < n; i++ {
		idx := strconv.Itoa(i)
		if strings.HasPrefix(get("MediaContentType"+idx), "audio/") {
			return get("MediaUrl" + idx)
		}
	}
	return ""
}

func (h *Handler) webhookURL(r *http.Request) string {
	if h.cfg.PublicURL != "" {
		return h.cfg.PublicURL
	}
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeTwiML(w http.ResponseWriter, reply string) {
	data, err := xml.Marshal(twiml{Message: reply})
	if err != nil {
		slog.Error("Failed to encode TwiML", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append([]byte(xml.Header), data...)); err != nil {
		slog.Error("Failed to write TwiML", "error", err)
	}
}
