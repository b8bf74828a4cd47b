package chat

import "context"

// Store is the persistence collaborator consumed by the chat services.
// Lookup methods return (nil, nil) when the row does not exist.
type Store interface {
	FindUserByID(ctx context.Context, id string) (*User, error)
	SetOnline(ctx context.Context, userID string, online bool, at int64) error

	InsertMessage(ctx context.Context, m *Message) error
	FindMessageByID(ctx context.Context, id string) (*Message, error)
	UpdateMessageStatus(ctx context.Context, id string, status Status) error
	MarkMessageDelivered(ctx context.Context, id string, deliveredAt int64) error
	MarkMessageRead(ctx context.Context, id string, readAt int64) error
	PendingMessages(ctx context.Context) ([]*Message, error)
	MessagesForConversation(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error)

	InsertConversation(ctx context.Context, c *Conversation) error
	ConversationByID(ctx context.Context, id string) (*Conversation, error)
	ConversationByPair(ctx context.Context, user1ID, user2ID string) (*Conversation, error)
	ConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error)
	TouchConversation(ctx context.Context, id string, lastMessageAt int64) error
}
