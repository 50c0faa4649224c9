package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
	"github.com/monitor-judicial/whatsapp-agent/internal/llm"
	"github.com/monitor-judicial/whatsapp-agent/internal/store"
)

var (
	// ErrUnknownUser is returned when the acting user has no profile.
	ErrUnknownUser = errors.New("unknown user")
	// ErrEmptyMessage is returned for a message with neither text nor audio.
	ErrEmptyMessage = errors.New("message is empty")
)

const (
	// AudioUnavailableText replaces a voice note that could not be downloaded.
	AudioUnavailableText = "[El usuario envió una nota de voz que no se pudo descargar]"
	// VoiceNoteText stands in for a voice note in persisted history, which
	// never stores audio.
	VoiceNoteText = "[Nota de voz]"
)

const (
	failureReply  = "Tuve un problema para procesar tu mensaje. Intenta de nuevo en unos minutos."
	overloadReply = "El servicio está saturado en este momento. Intenta de nuevo en unos minutos."
)

// AudioFetcher downloads a voice note referenced by an inbound message.
type AudioFetcher interface {
	Fetch(ctx context.Context, url string) (*llm.Blob, error)
}

// Processor answers chat messages. It is implemented by Service.
type Processor interface {
	Process(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

var _ Processor = (*Service)(nil)

// Service loads a conversation, runs one turn and persists the result.
type Service struct {
	orchestrator *Orchestrator
	repo         store.Repository
	codec        llm.Codec
	audio        AudioFetcher
	locks        *keyedMutex
	maxPersisted int
	log          ConversationLogger
}

// NewService creates a Service. History is persisted with codec, which
// should belong to the router's primary provider.
func NewService(orchestrator *Orchestrator, repo store.Repository, codec llm.Codec, audio AudioFetcher, log ConversationLogger, cfg Config) *Service {
	if log == nil {
		log = noopConversationLogger{}
	}
	if cfg.MaxPersisted <= 0 {
		cfg.MaxPersisted = DefaultConfig().MaxPersisted
	}
	return &Service{
		orchestrator: orchestrator,
		repo:         repo,
		codec:        codec,
		audio:        audio,
		locks:        newKeyedMutex(),
		maxPersisted: cfg.MaxPersisted,
		log:          log,
	}
}

// Process runs one turn. Turns of the same conversation never overlap.
//
// Model failures are answered with a generic reply and leave the stored
// history untouched, so the user can simply resend the message.
func (s *Service) Process(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if strings.TrimSpace(req.Message) == "" && req.AudioURL == "" {
		return nil, ErrEmptyMessage
	}
	if req.ConversationID == "" {
		req.ConversationID = req.UserID
	}

	unlock := s.locks.Lock(req.UserID + ":" + req.ConversationID)
	defer unlock()

	profile, err := s.repo.GetUserProfile(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, req.UserID)
	}

	conv, history, err := s.load(ctx, req.UserID, req.ConversationID)
	if err != nil {
		return nil, err
	}

	msg := s.userMessage(ctx, req)
	s.logEvent(req, "inbound", "user_message", msg.Text, nil)

	started := time.Now()
	result, err := s.orchestrator.Turn(ctx, profile, history, msg)
	if err != nil {
		reply := failureReply
		var exhausted *llm.ExhaustedError
		if errors.As(err, &exhausted) {
			reply = overloadReply
		}
		slog.Error("Agent turn failed",
			"user_id", req.UserID,
			"conversation_id", req.ConversationID,
			"error", err)
		s.logEvent(req, "outbound", "assistant_error", reply, map[string]any{"error": err.Error()})
		return &ChatResponse{Reply: reply, ConversationID: req.ConversationID, State: StateAwaitingInput}, nil
	}

	if err := s.save(ctx, conv, result.History); err != nil {
		// The reply is still sent; a confirmed write has already happened.
		slog.Error("Failed to persist conversation",
			"user_id", req.UserID,
			"conversation_id", req.ConversationID,
			"error", err)
	}

	slog.Info("Agent turn completed",
		"user_id", req.UserID,
		"conversation_id", req.ConversationID,
		"provider", result.Provider,
		"used_fallback", result.UsedFallback,
		"state", result.State,
		"tools", result.ToolsUsed,
		"duration", time.Since(started))
	s.logEvent(req, "outbound", "assistant_message", result.Reply, map[string]any{
		"provider":      result.Provider,
		"used_fallback": result.UsedFallback,
		"state":         result.State,
		"tools_used":    result.ToolsUsed,
	})

	return &ChatResponse{
		Reply:          result.Reply,
		ConversationID: req.ConversationID,
		State:          result.State,
		Provider:       result.Provider,
		UsedFallback:   result.UsedFallback,
		ToolsUsed:      result.ToolsUsed,
	}, nil
}

// Reset forgets a conversation.
func (s *Service) Reset(ctx context.Context, userID, conversationID string) error {
	unlock := s.locks.Lock(userID + ":" + conversationID)
	defer unlock()
	return s.repo.DeleteConversation(ctx, userID, conversationID)
}

func (s *Service) userMessage(ctx context.Context, req ChatRequest) llm.Message {
	msg := llm.UserText(strings.TrimSpace(req.Message))
	if req.AudioURL == "" {
		return msg
	}
	if s.audio != nil {
		blob, err := s.audio.Fetch(ctx, req.AudioURL)
		if err == nil {
			msg.Audio = blob
			if msg.Text == "" {
				msg.Text = VoiceNoteText
			}
			return msg
		}
		slog.Warn("Voice note download failed, using placeholder",
			"user_id", req.UserID,
			"error", err)
	}
	msg.Text = strings.TrimSpace(msg.Text + "\n" + AudioUnavailableText)
	return msg
}

func (s *Service) load(ctx context.Context, userID, conversationID string) (*domain.Conversation, []llm.Message, error) {
	conv, err := s.repo.GetConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, nil, fmt.Errorf("load conversation: %w", err)
	}
	if conv == nil || conv.HistoryJSON == "" {
		return &domain.Conversation{UserID: userID, ConversationID: conversationID}, nil, nil
	}

	// History written while another provider was primary is read with the
	// codec it was written in.
	codec := s.codec
	if conv.Codec != "" && conv.Codec != codec.Name() {
		if codec, err = llm.CodecFor(conv.Codec); err != nil {
			return nil, nil, err
		}
	}
	history, err := codec.Decode([]byte(conv.HistoryJSON))
	if err != nil {
		slog.Warn("Discarding unreadable conversation history",
			"user_id", userID,
			"conversation_id", conversationID,
			"codec", conv.Codec,
			"error", err)
		return conv, nil, nil
	}
	return conv, history, nil
}

func (s *Service) save(ctx context.Context, conv *domain.Conversation, history []llm.Message) error {
	data, err := s.codec.Encode(trimHistory(history, s.maxPersisted))
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	conv.Codec = s.codec.Name()
	conv.HistoryJSON = string(data)
	return s.repo.SaveConversation(ctx, conv)
}

// trimHistory keeps at most limit messages, starting at a user message.
func trimHistory(history []llm.Message, limit int) []llm.Message {
	if len(history) <= limit {
		return history
	}
	return Window(history, limit)
}

func (s *Service) logEvent(req ChatRequest, direction, eventType, content string, meta map[string]any) {
	if meta == nil {
		meta = map[string]any{}
	}
	if req.RequestID != "" {
		meta["request_id"] = req.RequestID
	}
	s.log.Log(ConversationLogEvent{
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		UserID:         req.UserID,
		ConversationID: req.ConversationID,
		Channel:        req.Channel,
		Direction:      direction,
		EventType:      eventType,
		ContentRaw:     content,
		Content:        cleanForReadability(content),
		Meta:           meta,
	})
}

// keyedMutex serializes work per key and forgets keys nobody holds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until key is free and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
