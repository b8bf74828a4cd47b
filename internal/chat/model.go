package chat

// Status is the delivery lifecycle of a persisted message. It only moves
// forward: pending < sent < delivered < read, with failed terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

func (s Status) weight() int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusFailed:
		return 99
	default:
		return 0
	}
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Message is a persisted chat message. Timestamps are unix milliseconds.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	RecipientID    string `json:"recipientId"`
	Content        string `json:"content"`
	CreatedAt      int64  `json:"createdAt"`
	DeliveredAt    *int64 `json:"deliveredAt,omitempty"`
	ReadAt         *int64 `json:"readAt,omitempty"`
	Status         Status `json:"status"`
	IsAnonymized   bool   `json:"isAnonymized"`
}

// Conversation is a one-to-one conversation. Participant ids are stored in
// canonical order (User1ID < User2ID) so one row exists per unordered pair.
type Conversation struct {
	ID            string `json:"id"`
	User1ID       string `json:"user1Id"`
	User2ID       string `json:"user2Id"`
	CreatedAt     int64  `json:"createdAt"`
	LastMessageAt *int64 `json:"lastMessageAt,omitempty"`
}

// Partner returns the other participant of the conversation.
func (c *Conversation) Partner(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// User is the view of an account the chat layer needs: identity, soft-delete
// flag and presence fields.
type User struct {
	ID         string
	Username   string
	IsOnline   bool
	LastSeenAt *int64
	DeletedAt  *int64
}

// Deleted reports whether the account is soft-deleted.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}
