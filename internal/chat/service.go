package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"privchat/internal/metrics"
)

// Pagination cap for history reads.
const MaxHistoryLimit = 100

var (
	ErrSenderNotFound   = errors.New("sender not found")
	ErrRecipientGone    = errors.New("recipient not found or deleted")
	ErrNotParticipant   = errors.New("requester is not a conversation participant")
	ErrConversationGone = errors.New("conversation not found")
	ErrSelfConversation = errors.New("cannot open a conversation with yourself")
	ErrMessageNotFound  = errors.New("message not found")
	ErrInvalidStatus    = errors.New("invalid status value")
	ErrConversationPair = errors.New("message participants do not match conversation")
)

// Service owns the message lifecycle: creation, idempotent resends and the
// monotonic status progression.
type Service struct {
	store  Store
	policy ContentPolicy
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, policy ContentPolicy, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		policy: policy,
		log:    log.With().Str("component", "message_service").Logger(),
		now:    time.Now,
	}
}

// SendMessage validates and persists a new pending message under a fresh id.
func (s *Service) SendMessage(ctx context.Context, conversationID, senderID, recipientID, content string) (*Message, error) {
	m, _, err := s.SendMessageWithID(ctx, uuid.NewString(), conversationID, senderID, recipientID, content)
	return m, err
}

// SendMessageWithID is the idempotent send. When a message with clientID
// already exists it is returned unchanged with created=false; no
// re-validation or re-delivery happens. Otherwise the message is validated,
// persisted as pending and returned with created=true.
//
// conversationID may be empty; the canonical conversation for the pair is
// then found or created.
func (s *Service) SendMessageWithID(ctx context.Context, clientID, conversationID, senderID, recipientID, content string) (*Message, bool, error) {
	existing, err := s.store.FindMessageByID(ctx, clientID)
	if err != nil {
		return nil, false, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		metrics.MessagesDuplicate.Inc()
		s.log.Debug().Str("messageId", clientID).Msg("duplicate send suppressed")
		return existing, false, nil
	}

	if err := s.policy.ValidateMessage(&MessagePayload{RecipientID: recipientID, Content: content}); err != nil {
		return nil, false, err
	}

	sender, err := s.store.FindUserByID(ctx, senderID)
	if err != nil {
		return nil, false, fmt.Errorf("sender lookup: %w", err)
	}
	if sender == nil || sender.Deleted() {
		return nil, false, ErrSenderNotFound
	}

	recipient, err := s.store.FindUserByID(ctx, recipientID)
	if err != nil {
		return nil, false, fmt.Errorf("recipient lookup: %w", err)
	}
	if recipient == nil || recipient.Deleted() {
		return nil, false, ErrRecipientGone
	}

	conv, err := s.resolveConversation(ctx, conversationID, senderID, recipientID)
	if err != nil {
		return nil, false, err
	}

	now := s.now().UnixMilli()
	m := &Message{
		ID:             clientID,
		ConversationID: conv.ID,
		SenderID:       senderID,
		RecipientID:    recipientID,
		Content:        content,
		CreatedAt:      now,
		Status:         StatusPending,
	}
	if err := s.store.InsertMessage(ctx, m); err != nil {
		return nil, false, fmt.Errorf("persist message: %w", err)
	}
	if err := s.store.TouchConversation(ctx, conv.ID, now); err != nil {
		s.log.Warn().Err(err).Str("conversationId", conv.ID).Msg("touch conversation failed")
	}

	metrics.MessagesPersisted.Inc()
	return m, true, nil
}

func (s *Service) resolveConversation(ctx context.Context, conversationID, senderID, recipientID string) (*Conversation, error) {
	if conversationID != "" {
		conv, err := s.store.ConversationByID(ctx, conversationID)
		if err != nil {
			return nil, fmt.Errorf("conversation lookup: %w", err)
		}
		if conv == nil {
			return nil, ErrConversationGone
		}
		if !conv.HasParticipant(senderID) || !conv.HasParticipant(recipientID) {
			return nil, ErrConversationPair
		}
		return conv, nil
	}
	return s.CreateOrGetConversation(ctx, senderID, recipientID)
}

// CreateOrGetConversation finds or creates the single conversation for an
// unordered user pair. Participant ids are stored smaller-first so the pair
// maps to exactly one row.
func (s *Service) CreateOrGetConversation(ctx context.Context, userA, userB string) (*Conversation, error) {
	if userA == userB {
		return nil, ErrSelfConversation
	}
	user1, user2 := userA, userB
	if user2 < user1 {
		user1, user2 = user2, user1
	}

	conv, err := s.store.ConversationByPair(ctx, user1, user2)
	if err != nil {
		return nil, fmt.Errorf("pair lookup: %w", err)
	}
	if conv != nil {
		return conv, nil
	}

	conv = &Conversation{
		ID:        uuid.NewString(),
		User1ID:   user1,
		User2ID:   user2,
		CreatedAt: s.now().UnixMilli(),
	}
	if err := s.store.InsertConversation(ctx, conv); err != nil {
		// A concurrent create for the same pair loses the insert race;
		// fall back to the winner's row.
		if existing, lookupErr := s.store.ConversationByPair(ctx, user1, user2); lookupErr == nil && existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return conv, nil
}

// MarkDelivered stamps delivered-at and advances the status, but only from
// pending or sent. Later statuses are left alone.
func (s *Service) MarkDelivered(ctx context.Context, id string) error {
	m, err := s.store.FindMessageByID(ctx, id)
	if err != nil {
		return fmt.Errorf("message lookup: %w", err)
	}
	if m == nil {
		return ErrMessageNotFound
	}
	if m.Status != StatusPending && m.Status != StatusSent {
		return nil
	}
	return s.store.MarkMessageDelivered(ctx, id, s.now().UnixMilli())
}

// MarkSent advances a message from pending to sent. Any other current status
// is left alone.
func (s *Service) MarkSent(ctx context.Context, id string) error {
	m, err := s.store.FindMessageByID(ctx, id)
	if err != nil {
		return fmt.Errorf("message lookup: %w", err)
	}
	if m == nil {
		return ErrMessageNotFound
	}
	if m.Status != StatusPending {
		return nil
	}
	return s.store.UpdateMessageStatus(ctx, id, StatusSent)
}

// MarkFailed terminally fails a message that can never be delivered.
func (s *Service) MarkFailed(ctx context.Context, id string) error {
	return s.store.UpdateMessageStatus(ctx, id, StatusFailed)
}

// UpdateStatus applies a client-reported status change. Regressions and
// calls from a user who is neither sender nor recipient are silent no-ops
// returning the stored record. Clients retry at-least-once, so no-ops must
// not surface as errors.
func (s *Service) UpdateStatus(ctx context.Context, id string, newStatus Status, callerID string) (*Message, error) {
	if !newStatus.Valid() {
		return nil, ErrInvalidStatus
	}

	m, err := s.store.FindMessageByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("message lookup: %w", err)
	}
	if m == nil {
		return nil, ErrMessageNotFound
	}
	if m.SenderID != callerID && m.RecipientID != callerID {
		return m, nil
	}
	if newStatus.weight() <= m.Status.weight() || m.Status == StatusFailed {
		return m, nil
	}

	now := s.now().UnixMilli()
	switch newStatus {
	case StatusDelivered:
		if err := s.store.MarkMessageDelivered(ctx, id, now); err != nil {
			return nil, err
		}
		m.Status = StatusDelivered
		m.DeliveredAt = &now
	case StatusRead:
		if err := s.store.MarkMessageRead(ctx, id, now); err != nil {
			return nil, err
		}
		m.Status = StatusRead
		m.ReadAt = &now
	default:
		if err := s.store.UpdateMessageStatus(ctx, id, newStatus); err != nil {
			return nil, err
		}
		m.Status = newStatus
	}
	return m, nil
}

// GetConversationMessages returns a newest-first page of a conversation's
// history. The requester must be a participant; limit is capped.
func (s *Service) GetConversationMessages(ctx context.Context, conversationID, requesterID string, limit, offset int) ([]*Message, error) {
	conv, err := s.store.ConversationByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("conversation lookup: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationGone
	}
	if !conv.HasParticipant(requesterID) {
		return nil, ErrNotParticipant
	}

	if limit <= 0 || limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.MessagesForConversation(ctx, conversationID, limit, offset)
}

// ConversationsForUser returns the user's conversations, most recently
// active first.
func (s *Service) ConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.ConversationsForUser(ctx, userID, limit, offset)
}
