package chat

import (
	"errors"
	"fmt"
	"time"
	"unicode"
)

// Validation limits.
const (
	MaxContentLength = 5000
	MaxClockSkew     = 5 * time.Minute
)

var (
	ErrEmptyID          = errors.New("envelope id is empty")
	ErrUnknownType      = errors.New("unknown envelope type")
	ErrClockSkew        = errors.New("timestamp outside allowed skew")
	ErrEmptyRecipient   = errors.New("recipientId is empty")
	ErrEmptyContent     = errors.New("content is empty")
	ErrContentTooLong   = errors.New("content exceeds maximum length")
	ErrContentControl   = errors.New("content contains control characters")
	ErrInvalidRecipient = errors.New("recipient does not exist")
)

// ContentPolicy selects which control characters invalidate message content.
// The zero value rejects the full Unicode control category except newline
// and tab.
type ContentPolicy struct {
	ASCIIControlOnly bool
}

// ValidateContent checks message content against the length and character
// rules. Length counts runes, not bytes.
func (p ContentPolicy) ValidateContent(content string) error {
	if content == "" {
		return ErrEmptyContent
	}
	n := 0
	for _, r := range content {
		n++
		if n > MaxContentLength {
			return ErrContentTooLong
		}
		if r == '\n' || r == '\t' {
			continue
		}
		if p.ASCIIControlOnly {
			if r < 0x20 || r == 0x7f {
				return ErrContentControl
			}
		} else if unicode.IsControl(r) {
			return ErrContentControl
		}
	}
	return nil
}

var knownTypes = map[string]bool{
	TypeMessage:   true,
	TypeTyping:    true,
	TypeHeartbeat: true,
	TypeAck:       true,
	TypePresence:  true,
	TypeError:     true,
}

// ValidateEnvelope checks the fields every frame must carry: a non-empty id,
// a known type and a timestamp within the allowed skew of the server clock.
func ValidateEnvelope(env *Envelope, now time.Time) error {
	if env.ID == "" {
		return ErrEmptyID
	}
	if !knownTypes[env.Type] {
		return fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}

	ts := time.UnixMilli(int64(env.Timestamp))
	skew := now.Sub(ts)
	if skew < 0 {
		skew = -skew
	}
	if skew > MaxClockSkew {
		return ErrClockSkew
	}
	return nil
}

// ValidateMessage checks a message payload beyond the envelope-level rules.
func (p ContentPolicy) ValidateMessage(payload *MessagePayload) error {
	if payload.RecipientID == "" {
		return ErrEmptyRecipient
	}
	return p.ValidateContent(payload.Content)
}

// ValidateTyping checks a typing payload.
func ValidateTyping(payload *TypingPayload) error {
	if payload.RecipientID == "" {
		return ErrEmptyRecipient
	}
	return nil
}
