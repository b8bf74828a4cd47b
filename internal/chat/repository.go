package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Repository implements Store over Postgres.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) FindUserByID(ctx context.Context, id string) (*User, error) {
	u := &User{}
	query := `SELECT id, username, is_online, last_seen_at, deleted_at
              FROM users WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&u.ID, &u.Username, &u.IsOnline, &u.LastSeenAt, &u.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return u, nil
}

func (r *Repository) SetOnline(ctx context.Context, userID string, online bool, at int64) error {
	query := `UPDATE users SET is_online = $1, last_seen_at = $2, updated_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, online, at, userID); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

func (r *Repository) InsertMessage(ctx context.Context, m *Message) error {
	query := `INSERT INTO messages
              (id, conversation_id, sender_id, recipient_id, content, created_at, status, is_anonymized)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.ConversationID, m.SenderID, m.RecipientID, m.Content, m.CreatedAt, m.Status, m.IsAnonymized)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *Repository) FindMessageByID(ctx context.Context, id string) (*Message, error) {
	m := &Message{}
	query := `SELECT id, conversation_id, sender_id, recipient_id, content,
                     created_at, delivered_at, read_at, status, is_anonymized
              FROM messages WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.Content,
		&m.CreatedAt, &m.DeliveredAt, &m.ReadAt, &m.Status, &m.IsAnonymized)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find message: %w", err)
	}
	return m, nil
}

func (r *Repository) UpdateMessageStatus(ctx context.Context, id string, status Status) error {
	query := `UPDATE messages SET status = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, id); err != nil {
		return fmt.Errorf("update message status: %w", err)
	}
	return nil
}

func (r *Repository) MarkMessageDelivered(ctx context.Context, id string, deliveredAt int64) error {
	query := `UPDATE messages SET status = $1, delivered_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, StatusDelivered, deliveredAt, id); err != nil {
		return fmt.Errorf("mark message delivered: %w", err)
	}
	return nil
}

func (r *Repository) MarkMessageRead(ctx context.Context, id string, readAt int64) error {
	query := `UPDATE messages SET status = $1, read_at = $2 WHERE id = $3`
	if _, err := r.db.ExecContext(ctx, query, StatusRead, readAt, id); err != nil {
		return fmt.Errorf("mark message read: %w", err)
	}
	return nil
}

// PendingMessages returns every message still awaiting delivery, oldest
// first. Used to rebuild the retry queue at startup.
func (r *Repository) PendingMessages(ctx context.Context) ([]*Message, error) {
	query := `SELECT id, conversation_id, sender_id, recipient_id, content,
                     created_at, delivered_at, read_at, status, is_anonymized
              FROM messages WHERE status = $1 ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, StatusPending)
	if err != nil {
		return nil, fmt.Errorf("pending messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *Repository) MessagesForConversation(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error) {
	query := `SELECT id, conversation_id, sender_id, recipient_id, content,
                     created_at, delivered_at, read_at, status, is_anonymized
              FROM messages WHERE conversation_id = $1
              ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, conversationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("conversation messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *Repository) InsertConversation(ctx context.Context, c *Conversation) error {
	query := `INSERT INTO conversations (id, user1_id, user2_id, created_at, last_message_at)
              VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.ExecContext(ctx, query, c.ID, c.User1ID, c.User2ID, c.CreatedAt, c.LastMessageAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

func (r *Repository) ConversationByID(ctx context.Context, id string) (*Conversation, error) {
	c := &Conversation{}
	query := `SELECT id, user1_id, user2_id, created_at, last_message_at
              FROM conversations WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.LastMessageAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation: %w", err)
	}
	return c, nil
}

func (r *Repository) ConversationByPair(ctx context.Context, user1ID, user2ID string) (*Conversation, error) {
	c := &Conversation{}
	query := `SELECT id, user1_id, user2_id, created_at, last_message_at
              FROM conversations WHERE user1_id = $1 AND user2_id = $2`

	err := r.db.QueryRowContext(ctx, query, user1ID, user2ID).
		Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.LastMessageAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find conversation by pair: %w", err)
	}
	return c, nil
}

func (r *Repository) ConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	query := `SELECT id, user1_id, user2_id, created_at, last_message_at
              FROM conversations WHERE user1_id = $1 OR user2_id = $1
              ORDER BY last_message_at DESC NULLS LAST LIMIT $2 OFFSET $3`

	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("conversations for user: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		c := &Conversation{}
		if err := rows.Scan(&c.ID, &c.User1ID, &c.User2ID, &c.CreatedAt, &c.LastMessageAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (r *Repository) TouchConversation(ctx context.Context, id string, lastMessageAt int64) error {
	query := `UPDATE conversations SET last_message_at = $1 WHERE id = $2`
	if _, err := r.db.ExecContext(ctx, query, lastMessageAt, id); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		m := &Message{}
		err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID, &m.RecipientID, &m.Content,
			&m.CreatedAt, &m.DeliveredAt, &m.ReadAt, &m.Status, &m.IsAnonymized)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
