package chat

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
)

// FrameKind classifies an incoming websocket frame.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
	FramePing
	FramePong
	FrameClose
)

// ParseResult is the outcome of classifying and decoding one frame. Exactly
// one of Envelope or ErrorReply is set for text frames; control frames set
// neither. Close reports that the connection should be torn down.
type ParseResult struct {
	Kind     FrameKind
	Envelope *Envelope

	// Decoded payload for the envelope's type. Only the field matching
	// Envelope.Type is populated.
	Message *MessagePayload
	Typing  *TypingPayload
	Ack     *AckPayload

	// ErrorReply is a ready-to-send error frame for the originating
	// connection. The connection stays open.
	ErrorReply []byte

	Close bool
}

// Parse classifies a raw frame and, for text frames, decodes and validates
// the envelope. Binary frames are rejected with an error reply but do not
// close the connection.
func Parse(messageType int, payload []byte, now time.Time) ParseResult {
	switch messageType {
	case websocket.BinaryMessage:
		return ParseResult{
			Kind:       FrameBinary,
			ErrorReply: errInvalidJSON("binary frames are not supported"),
		}
	case websocket.PingMessage:
		return ParseResult{Kind: FramePing}
	case websocket.PongMessage:
		return ParseResult{Kind: FramePong}
	case websocket.CloseMessage:
		return ParseResult{Kind: FrameClose, Close: true}
	}

	env := &Envelope{}
	if err := json.Unmarshal(payload, env); err != nil {
		return ParseResult{
			Kind:       FrameText,
			ErrorReply: errInvalidJSON(err.Error()),
		}
	}

	if err := ValidateEnvelope(env, now); err != nil {
		return ParseResult{
			Kind:       FrameText,
			ErrorReply: errInvalidJSON(err.Error()),
		}
	}

	result := ParseResult{Kind: FrameText, Envelope: env}

	switch env.Type {
	case TypeMessage:
		msg := &MessagePayload{}
		if err := json.Unmarshal(env.Data, msg); err != nil {
			result.ErrorReply = errInvalidJSON(err.Error())
			result.Envelope = nil
			return result
		}
		result.Message = msg
	case TypeTyping:
		typing := &TypingPayload{}
		if err := json.Unmarshal(env.Data, typing); err != nil {
			result.ErrorReply = errInvalidJSON(err.Error())
			result.Envelope = nil
			return result
		}
		result.Typing = typing
	case TypeAck:
		ack := &AckPayload{}
		if err := json.Unmarshal(env.Data, ack); err != nil {
			result.ErrorReply = errInvalidJSON(err.Error())
			result.Envelope = nil
			return result
		}
		result.Ack = ack
	}
	// heartbeat, presence and error envelopes carry no payload the server
	// acts on.

	return result
}
