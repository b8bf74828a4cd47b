package chat

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateContentLengthBounds(t *testing.T) {
	policy := ContentPolicy{}

	if err := policy.ValidateContent(""); !errors.Is(err, ErrEmptyContent) {
		t.Errorf("empty content: got %v, want ErrEmptyContent", err)
	}
	if err := policy.ValidateContent(strings.Repeat("a", 5000)); err != nil {
		t.Errorf("5000 chars: got %v, want nil", err)
	}
	if err := policy.ValidateContent(strings.Repeat("a", 5001)); !errors.Is(err, ErrContentTooLong) {
		t.Errorf("5001 chars: got %v, want ErrContentTooLong", err)
	}
}

func TestValidateContentCountsRunesNotBytes(t *testing.T) {
	policy := ContentPolicy{}

	// 5000 multibyte runes are within the limit even though the byte count
	// is far larger.
	if err := policy.ValidateContent(strings.Repeat("ü", 5000)); err != nil {
		t.Errorf("5000 runes: got %v, want nil", err)
	}
}

func TestValidateContentControlCharacters(t *testing.T) {
	policy := ContentPolicy{}

	if err := policy.ValidateContent("line one\nline two\ttabbed"); err != nil {
		t.Errorf("newline and tab: got %v, want nil", err)
	}
	if err := policy.ValidateContent("null\x00byte"); !errors.Is(err, ErrContentControl) {
		t.Errorf("NUL byte: got %v, want ErrContentControl", err)
	}
	if err := policy.ValidateContent("bell\x07"); !errors.Is(err, ErrContentControl) {
		t.Errorf("BEL: got %v, want ErrContentControl", err)
	}
	// U+0085 NEL is a Unicode control but not an ASCII one.
	if err := policy.ValidateContent("next\u0085line"); !errors.Is(err, ErrContentControl) {
		t.Errorf("unicode control: got %v, want ErrContentControl", err)
	}
}

func TestValidateContentASCIIOnlyPolicy(t *testing.T) {
	policy := ContentPolicy{ASCIIControlOnly: true}

	if err := policy.ValidateContent("next\u0085line"); err != nil {
		t.Errorf("unicode control under ascii policy: got %v, want nil", err)
	}
	if err := policy.ValidateContent("null\x00byte"); !errors.Is(err, ErrContentControl) {
		t.Errorf("NUL under ascii policy: got %v, want ErrContentControl", err)
	}
	if err := policy.ValidateContent("del\x7f"); !errors.Is(err, ErrContentControl) {
		t.Errorf("DEL under ascii policy: got %v, want ErrContentControl", err)
	}
}

func TestValidateEnvelope(t *testing.T) {
	now := time.Now()
	valid := &Envelope{
		ID:        "m1",
		Type:      TypeMessage,
		Timestamp: uint64(now.UnixMilli()),
	}
	if err := ValidateEnvelope(valid, now); err != nil {
		t.Errorf("valid envelope: got %v, want nil", err)
	}

	noID := &Envelope{Type: TypeMessage, Timestamp: uint64(now.UnixMilli())}
	if err := ValidateEnvelope(noID, now); !errors.Is(err, ErrEmptyID) {
		t.Errorf("empty id: got %v, want ErrEmptyID", err)
	}

	badType := &Envelope{ID: "m1", Type: "bogus", Timestamp: uint64(now.UnixMilli())}
	if err := ValidateEnvelope(badType, now); !errors.Is(err, ErrUnknownType) {
		t.Errorf("unknown type: got %v, want ErrUnknownType", err)
	}
}

func TestValidateEnvelopeClockSkew(t *testing.T) {
	now := time.Now()

	within := &Envelope{
		ID:        "m1",
		Type:      TypeHeartbeat,
		Timestamp: uint64(now.Add(4 * time.Minute).UnixMilli()),
	}
	if err := ValidateEnvelope(within, now); err != nil {
		t.Errorf("4 minutes ahead: got %v, want nil", err)
	}

	ahead := &Envelope{
		ID:        "m2",
		Type:      TypeHeartbeat,
		Timestamp: uint64(now.Add(6 * time.Minute).UnixMilli()),
	}
	if err := ValidateEnvelope(ahead, now); !errors.Is(err, ErrClockSkew) {
		t.Errorf("6 minutes ahead: got %v, want ErrClockSkew", err)
	}

	behind := &Envelope{
		ID:        "m3",
		Type:      TypeHeartbeat,
		Timestamp: uint64(now.Add(-6 * time.Minute).UnixMilli()),
	}
	if err := ValidateEnvelope(behind, now); !errors.Is(err, ErrClockSkew) {
		t.Errorf("6 minutes behind: got %v, want ErrClockSkew", err)
	}
}

func TestValidateMessageAndTyping(t *testing.T) {
	policy := ContentPolicy{}

	if err := policy.ValidateMessage(&MessagePayload{RecipientID: "", Content: "hi"}); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("missing recipient: got %v, want ErrEmptyRecipient", err)
	}
	if err := policy.ValidateMessage(&MessagePayload{RecipientID: "u2", Content: "hi"}); err != nil {
		t.Errorf("valid message: got %v, want nil", err)
	}

	if err := ValidateTyping(&TypingPayload{RecipientID: ""}); !errors.Is(err, ErrEmptyRecipient) {
		t.Errorf("typing missing recipient: got %v, want ErrEmptyRecipient", err)
	}
	if err := ValidateTyping(&TypingPayload{RecipientID: "u2", IsTyping: true}); err != nil {
		t.Errorf("valid typing: got %v, want nil", err)
	}
}
