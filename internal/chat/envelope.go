package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire frame exchanged over the websocket. Timestamp is
// unix milliseconds at the moment the frame was produced.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp uint64          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// Envelope types.
const (
	TypeMessage   = "message"
	TypeTyping    = "typing"
	TypeHeartbeat = "heartbeat"
	TypeAck       = "ack"
	TypePresence  = "presence"
	TypeError     = "error"
)

// Error codes carried in error envelopes.
const (
	CodeInvalidJSON          = "INVALID_JSON"
	CodeInvalidMessageLength = "INVALID_MESSAGE_LENGTH"
	CodeRecipientNotFound    = "RECIPIENT_NOT_FOUND"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeServerError          = "SERVER_ERROR"
	CodeRateLimited          = "RATE_LIMITED"
)

// MessagePayload is the data of a "message" envelope. Inbound frames carry
// recipientId and content; outbound frames add the sender identity and the
// persisted conversation and status fields.
type MessagePayload struct {
	SenderID       string `json:"senderId,omitempty"`
	SenderUsername string `json:"senderUsername,omitempty"`
	RecipientID    string `json:"recipientId"`
	Content        string `json:"content"`
	ConversationID string `json:"conversationId,omitempty"`
	Status         string `json:"status,omitempty"`
}

// TypingPayload is the data of a "typing" envelope.
type TypingPayload struct {
	SenderID       string `json:"senderId,omitempty"`
	SenderUsername string `json:"senderUsername,omitempty"`
	RecipientID    string `json:"recipientId"`
	IsTyping       bool   `json:"isTyping"`
}

// AckPayload is the data of an "ack" envelope. Server acks reference the
// client frame id that triggered them; client acks carry the message id and
// the status the client advanced it to.
type AckPayload struct {
	OriginalMessageID string `json:"originalMessageId,omitempty"`
	MessageID         string `json:"messageId,omitempty"`
	ConversationID    string `json:"conversationId,omitempty"`
	Status            string `json:"status,omitempty"`
	ServerTimestamp   uint64 `json:"serverTimestamp,omitempty"`
}

// PresencePayload is the data of a "presence" envelope.
type PresencePayload struct {
	UserID     string `json:"userId"`
	Username   string `json:"username"`
	IsOnline   bool   `json:"isOnline"`
	LastSeenAt *int64 `json:"lastSeenAt,omitempty"`
}

// ErrorPayload is the data of an "error" envelope.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// NewEnvelope wraps data in a fresh envelope with a generated id and the
// current server time.
func NewEnvelope(envType string, data interface{}) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      envType,
		Timestamp: uint64(time.Now().UnixMilli()),
		Data:      raw,
	}, nil
}

// MarshalFrame builds an envelope and returns its JSON encoding, ready for a
// connection's send channel.
func MarshalFrame(envType string, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(envType, data)
	if err != nil {
		return nil, err
	}
	return marshalEnvelope(env)
}

func marshalEnvelope(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// errorFrame encodes an error envelope. Marshalling a plain struct of
// strings cannot fail, so the error is dropped.
func errorFrame(code, message, details string) []byte {
	frame, _ := MarshalFrame(TypeError, ErrorPayload{
		Code:    code,
		Message: message,
		Details: details,
	})
	return frame
}

func errInvalidJSON(details string) []byte {
	return errorFrame(CodeInvalidJSON, "frame could not be parsed", details)
}

func errInvalidMessageLength(details string) []byte {
	return errorFrame(CodeInvalidMessageLength, "message content length out of range", details)
}

func errRecipientNotFound(details string) []byte {
	return errorFrame(CodeRecipientNotFound, "recipient does not exist", details)
}

func errUnauthorized(details string) []byte {
	return errorFrame(CodeUnauthorized, "not allowed", details)
}

func errServerError(details string) []byte {
	return errorFrame(CodeServerError, "internal error", details)
}

func errRateLimited(retryAfter int64) []byte {
	frame, _ := MarshalFrame(TypeError, struct {
		Code       string `json:"code"`
		Message    string `json:"message"`
		RetryAfter int64  `json:"retryAfter"`
	}{
		Code:       CodeRateLimited,
		Message:    "too many messages, slow down",
		RetryAfter: retryAfter,
	})
	return frame
}
