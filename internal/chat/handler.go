package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"privchat/internal/metrics"
	"privchat/internal/middleware"
	"privchat/internal/ratelimit"
)

// Handler terminates websocket connections and exposes the REST surface for
// conversations and history.
type Handler struct {
	registry  *Registry
	svc       *Service
	queue     *DeliveryQueue
	presence  *Presence
	handshake *Handshake
	limiter   *ratelimit.Bucketer
	log       zerolog.Logger

	maxFrameSize int64
}

func NewHandler(
	registry *Registry,
	svc *Service,
	queue *DeliveryQueue,
	presence *Presence,
	handshake *Handshake,
	limiter *ratelimit.Bucketer,
	maxFrameSize int64,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		registry:     registry,
		svc:          svc,
		queue:        queue,
		presence:     presence,
		handshake:    handshake,
		limiter:      limiter,
		maxFrameSize: maxFrameSize,
		log:          log.With().Str("component", "ws_handler").Logger(),
	}
}

// ServeWs authenticates and upgrades a websocket request, then runs the
// connection's pumps until it closes.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	identity, status, err := h.handshake.Authenticate(r)
	if err != nil {
		h.log.Debug().Err(err).Int("status", status).Msg("handshake rejected")
		http.Error(w, http.StatusText(status), status)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("upgrade failed")
		return
	}

	client := &Client{
		h:        h,
		userID:   identity.UserID,
		username: identity.Username,
		connID:   uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
	}

	h.registry.Register(client.userID, client.connID, client.send)
	if err := h.presence.MarkOnline(context.Background(), client.userID, client.username); err != nil {
		h.log.Warn().Err(err).Str("userId", client.userID).Msg("mark online failed")
	}

	h.log.Info().Str("userId", client.userID).Str("connId", client.connID).Msg("websocket connected")

	go client.writePump()
	go client.readPump()
}

// dropClient unregisters a closing connection. The user goes offline only
// when their last connection is gone.
func (h *Handler) dropClient(c *Client) {
	h.registry.Unregister(c.userID, c.connID)
	close(c.send)

	if !h.registry.IsOnline(c.userID) {
		if err := h.presence.MarkOffline(context.Background(), c.userID, c.username); err != nil {
			h.log.Warn().Err(err).Str("userId", c.userID).Msg("mark offline failed")
		}
	}
	h.log.Info().Str("userId", c.userID).Str("connId", c.connID).Msg("websocket disconnected")
}

// dispatch routes one inbound frame. Validation failures answer the
// originating connection and keep it open.
func (h *Handler) dispatch(c *Client, messageType int, payload []byte) {
	result := Parse(messageType, payload, time.Now())

	if result.ErrorReply != nil {
		metrics.FramesRejected.WithLabelValues(CodeInvalidJSON).Inc()
		c.trySend(result.ErrorReply)
		return
	}
	if result.Close {
		c.conn.Close()
		return
	}
	if result.Envelope == nil {
		return
	}

	ctx := context.Background()
	switch result.Envelope.Type {
	case TypeMessage:
		h.handleMessage(ctx, c, result.Envelope, result.Message)
	case TypeTyping:
		h.handleTyping(c, result.Typing)
	case TypeHeartbeat:
		h.handleHeartbeat(c, result.Envelope)
	case TypeAck:
		h.handleAck(ctx, c, result.Ack)
	default:
		// presence and error frames are server-originated; tolerate echoes.
	}
}

func (h *Handler) handleMessage(ctx context.Context, c *Client, env *Envelope, payload *MessagePayload) {
	allowed, retryAfter := h.limiter.Allow(c.userID)
	if !allowed {
		metrics.RateLimited.WithLabelValues("message").Inc()
		c.trySend(errRateLimited(retryAfter))
		return
	}

	m, created, err := h.svc.SendMessageWithID(ctx, env.ID, payload.ConversationID, c.userID, payload.RecipientID, payload.Content)
	if err != nil {
		h.rejectMessage(c, err)
		return
	}

	if !created {
		// Duplicate resend: no re-delivery, just re-ack the stored record.
		h.ack(c, env.ID, m, string(m.Status))
		return
	}

	delivered := h.queue.Dispatch(ctx, m, c.username)
	status := string(StatusSent)
	if delivered {
		status = string(StatusDelivered)
	}
	h.ack(c, env.ID, m, status)
}

func (h *Handler) rejectMessage(c *Client, err error) {
	switch {
	case errors.Is(err, ErrEmptyContent), errors.Is(err, ErrContentTooLong), errors.Is(err, ErrContentControl):
		metrics.FramesRejected.WithLabelValues(CodeInvalidMessageLength).Inc()
		c.trySend(errInvalidMessageLength(err.Error()))
	case errors.Is(err, ErrEmptyRecipient):
		metrics.FramesRejected.WithLabelValues(CodeInvalidJSON).Inc()
		c.trySend(errInvalidJSON(err.Error()))
	case errors.Is(err, ErrRecipientGone), errors.Is(err, ErrConversationGone):
		metrics.FramesRejected.WithLabelValues(CodeRecipientNotFound).Inc()
		c.trySend(errRecipientNotFound(err.Error()))
	case errors.Is(err, ErrSenderNotFound), errors.Is(err, ErrConversationPair):
		metrics.FramesRejected.WithLabelValues(CodeUnauthorized).Inc()
		c.trySend(errUnauthorized(err.Error()))
	default:
		metrics.FramesRejected.WithLabelValues(CodeServerError).Inc()
		h.log.Error().Err(err).Str("userId", c.userID).Msg("message send failed")
		c.trySend(errServerError("message could not be processed"))
	}
}

func (h *Handler) ack(c *Client, originalID string, m *Message, status string) {
	frame, err := MarshalFrame(TypeAck, AckPayload{
		OriginalMessageID: originalID,
		MessageID:         m.ID,
		ConversationID:    m.ConversationID,
		Status:            status,
		ServerTimestamp:   uint64(time.Now().UnixMilli()),
	})
	if err != nil {
		return
	}
	c.trySend(frame)
}

// handleTyping forwards a typing indicator to the recipient's connections.
// Typing state is ephemeral; nothing is persisted and an offline recipient
// simply misses it.
func (h *Handler) handleTyping(c *Client, payload *TypingPayload) {
	if err := ValidateTyping(payload); err != nil {
		c.trySend(errInvalidJSON(err.Error()))
		return
	}
	frame, err := MarshalFrame(TypeTyping, TypingPayload{
		SenderID:       c.userID,
		SenderUsername: c.username,
		RecipientID:    payload.RecipientID,
		IsTyping:       payload.IsTyping,
	})
	if err != nil {
		return
	}
	h.registry.SendToUser(payload.RecipientID, frame)
}

func (h *Handler) handleHeartbeat(c *Client, env *Envelope) {
	frame, err := MarshalFrame(TypeAck, AckPayload{
		OriginalMessageID: env.ID,
		ServerTimestamp:   uint64(time.Now().UnixMilli()),
	})
	if err != nil {
		return
	}
	c.trySend(frame)
}

// handleAck applies a client-reported status change (delivered or read) and
// forwards the new status to the other participant.
func (h *Handler) handleAck(ctx context.Context, c *Client, payload *AckPayload) {
	if payload.MessageID == "" || payload.Status == "" {
		return
	}
	status := Status(payload.Status)
	if !status.Valid() {
		return
	}

	m, err := h.svc.UpdateStatus(ctx, payload.MessageID, status, c.userID)
	if err != nil {
		if !errors.Is(err, ErrMessageNotFound) && !errors.Is(err, ErrInvalidStatus) {
			h.log.Warn().Err(err).Str("messageId", payload.MessageID).Msg("status update failed")
		}
		return
	}

	other := m.SenderID
	if c.userID == m.SenderID {
		other = m.RecipientID
	}
	frame, err := MarshalFrame(TypeAck, AckPayload{
		MessageID:       m.ID,
		ConversationID:  m.ConversationID,
		Status:          string(m.Status),
		ServerTimestamp: uint64(time.Now().UnixMilli()),
	})
	if err != nil {
		return
	}
	h.registry.SendToUser(other, frame)
}

// Register adds the authenticated REST surface for conversations to r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/conversations", h.handleCreateConversation)
	r.Get("/conversations", h.handleListConversations)
	r.Get("/conversations/{conversationID}/messages", h.handleConversationMessages)
}

type createConversationRequest struct {
	UserID string `json:"userId"`
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())

	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	conv, err := h.svc.CreateOrGetConversation(r.Context(), userID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, ErrSelfConversation):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.log.Error().Err(err).Msg("create conversation failed")
			writeError(w, http.StatusInternalServerError, "could not create conversation")
		}
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (h *Handler) handleListConversations(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	conversations, err := h.svc.ConversationsForUser(r.Context(), userID, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Msg("list conversations failed")
		writeError(w, http.StatusInternalServerError, "could not list conversations")
		return
	}
	if conversations == nil {
		conversations = []*Conversation{}
	}
	writeJSON(w, http.StatusOK, conversations)
}

func (h *Handler) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r.Context())
	conversationID := chi.URLParam(r, "conversationID")
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	messages, err := h.svc.GetConversationMessages(r.Context(), conversationID, userID, limit, offset)
	if err != nil {
		switch {
		case errors.Is(err, ErrConversationGone):
			writeError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, ErrNotParticipant):
			writeError(w, http.StatusForbidden, "not a participant")
		default:
			h.log.Error().Err(err).Msg("message history failed")
			writeError(w, http.StatusInternalServerError, "could not load messages")
		}
		return
	}
	if messages == nil {
		messages = []*Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
