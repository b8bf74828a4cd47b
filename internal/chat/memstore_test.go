package chat

import (
	"context"
	"sort"
	"sync"
)

// memStore is an in-memory Store used by the package tests.
type memStore struct {
	mu            sync.Mutex
	users         map[string]*User
	messages      map[string]*Message
	conversations map[string]*Conversation
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[string]*User),
		messages:      make(map[string]*Message),
		conversations: make(map[string]*Conversation),
	}
}

func (s *memStore) addUser(u *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *memStore) addConversation(c *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[c.ID] = c
}

func (s *memStore) message(id string) *Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		copied := *m
		return &copied
	}
	return nil
}

func (s *memStore) FindUserByID(ctx context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) SetOnline(ctx context.Context, userID string, online bool, at int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IsOnline = online
		u.LastSeenAt = &at
	}
	return nil
}

func (s *memStore) InsertMessage(ctx context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *m
	s.messages[m.ID] = &copied
	return nil
}

func (s *memStore) FindMessageByID(ctx context.Context, id string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) UpdateMessageStatus(ctx context.Context, id string, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.Status = status
	}
	return nil
}

func (s *memStore) MarkMessageDelivered(ctx context.Context, id string, deliveredAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.Status = StatusDelivered
		m.DeliveredAt = &deliveredAt
	}
	return nil
}

func (s *memStore) MarkMessageRead(ctx context.Context, id string, readAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.messages[id]; ok {
		m.Status = StatusRead
		m.ReadAt = &readAt
	}
	return nil
}

func (s *memStore) PendingMessages(ctx context.Context) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*Message
	for _, m := range s.messages {
		if m.Status == StatusPending {
			copied := *m
			pending = append(pending, &copied)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt < pending[j].CreatedAt })
	return pending, nil
}

func (s *memStore) MessagesForConversation(ctx context.Context, conversationID string, limit, offset int) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []*Message
	for _, m := range s.messages {
		if m.ConversationID == conversationID {
			copied := *m
			all = append(all, &copied)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt > all[j].CreatedAt })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *memStore) InsertConversation(ctx context.Context, c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.conversations[c.ID] = &copied
	return nil
}

func (s *memStore) ConversationByID(ctx context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (s *memStore) ConversationByPair(ctx context.Context, user1ID, user2ID string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conversations {
		if c.User1ID == user1ID && c.User2ID == user2ID {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *memStore) ConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*Conversation
	for _, c := range s.conversations {
		if c.User1ID == userID || c.User2ID == userID {
			copied := *c
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *memStore) TouchConversation(ctx context.Context, id string, lastMessageAt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		c.LastMessageAt = &lastMessageAt
	}
	return nil
}
