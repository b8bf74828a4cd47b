package chat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestService(store Store) *Service {
	return NewService(store, ContentPolicy{}, zerolog.Nop())
}

func seedPair(store *memStore) *Conversation {
	store.addUser(&User{ID: "alice", Username: "alice"})
	store.addUser(&User{ID: "bob", Username: "bob"})
	conv := &Conversation{ID: "conv1", User1ID: "alice", User2ID: "bob", CreatedAt: 1}
	store.addConversation(conv)
	return conv
}

func TestSendMessageWithIDIsIdempotent(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	svc := newTestService(store)
	ctx := context.Background()

	first, created, err := svc.SendMessageWithID(ctx, "m1", conv.ID, "alice", "bob", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("first send should create")
	}
	if first.Status != StatusPending {
		t.Errorf("status = %q, want pending", first.Status)
	}

	second, created, err := svc.SendMessageWithID(ctx, "m1", conv.ID, "alice", "bob", "different content")
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second send must not create")
	}
	if second.ID != first.ID || second.Content != first.Content {
		t.Errorf("duplicate returned %+v, want stored record %+v", second, first)
	}
	if got := store.message("m1"); got.Content != "hi" {
		t.Errorf("stored content = %q, duplicate must not overwrite", got.Content)
	}
}

func TestSendMessageCreatesConversationWhenOmitted(t *testing.T) {
	store := newMemStore()
	store.addUser(&User{ID: "alice", Username: "alice"})
	store.addUser(&User{ID: "bob", Username: "bob"})
	svc := newTestService(store)

	m, created, err := svc.SendMessageWithID(context.Background(), "m1", "", "bob", "alice", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if !created {
		t.Fatal("expected create")
	}

	conv, err := store.ConversationByID(context.Background(), m.ConversationID)
	if err != nil || conv == nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.User1ID != "alice" || conv.User2ID != "bob" {
		t.Errorf("pair = (%s,%s), want canonical (alice,bob)", conv.User1ID, conv.User2ID)
	}
}

func TestSendMessageRejectsDeletedRecipient(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	deletedAt := time.Now().UnixMilli()
	store.addUser(&User{ID: "bob", Username: "bob", DeletedAt: &deletedAt})
	svc := newTestService(store)

	_, _, err := svc.SendMessageWithID(context.Background(), "m1", conv.ID, "alice", "bob", "hi")
	if !errors.Is(err, ErrRecipientGone) {
		t.Errorf("got %v, want ErrRecipientGone", err)
	}
}

func TestSendMessageRejectsUnknownSender(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	svc := newTestService(store)

	_, _, err := svc.SendMessageWithID(context.Background(), "m1", conv.ID, "mallory", "bob", "hi")
	if !errors.Is(err, ErrSenderNotFound) {
		t.Errorf("got %v, want ErrSenderNotFound", err)
	}
}

func TestSendMessageRejectsMismatchedConversation(t *testing.T) {
	store := newMemStore()
	seedPair(store)
	store.addUser(&User{ID: "carol", Username: "carol"})
	store.addConversation(&Conversation{ID: "conv2", User1ID: "bob", User2ID: "carol", CreatedAt: 1})
	svc := newTestService(store)

	_, _, err := svc.SendMessageWithID(context.Background(), "m1", "conv2", "alice", "bob", "hi")
	if !errors.Is(err, ErrConversationPair) {
		t.Errorf("got %v, want ErrConversationPair", err)
	}
}

func TestCreateOrGetConversationCanonicalPair(t *testing.T) {
	store := newMemStore()
	store.addUser(&User{ID: "alice"})
	store.addUser(&User{ID: "bob"})
	svc := newTestService(store)
	ctx := context.Background()

	first, err := svc.CreateOrGetConversation(ctx, "bob", "alice")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateOrGetConversation(ctx, "alice", "bob")
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Error("both orderings must resolve to the same conversation")
	}
	if first.User1ID >= first.User2ID {
		t.Errorf("pair (%s,%s) not in canonical order", first.User1ID, first.User2ID)
	}

	if _, err := svc.CreateOrGetConversation(ctx, "alice", "alice"); !errors.Is(err, ErrSelfConversation) {
		t.Errorf("self conversation: got %v, want ErrSelfConversation", err)
	}
}

func TestMarkDeliveredOnlyFromPendingOrSent(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	svc := newTestService(store)
	ctx := context.Background()

	m, _, err := svc.SendMessageWithID(ctx, "m1", conv.ID, "alice", "bob", "hi")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkDelivered(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if got := store.message(m.ID); got.Status != StatusDelivered || got.DeliveredAt == nil {
		t.Fatalf("after deliver: %+v", got)
	}

	// Read is past delivered; MarkDelivered must leave it alone.
	if err := store.MarkMessageRead(ctx, m.ID, time.Now().UnixMilli()); err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkDelivered(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if got := store.message(m.ID); got.Status != StatusRead {
		t.Errorf("status regressed to %q", got.Status)
	}
}

func TestMarkSentOnlyFromPending(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	svc := newTestService(store)
	ctx := context.Background()

	m, _, _ := svc.SendMessageWithID(ctx, "m1", conv.ID, "alice", "bob", "hi")
	if err := svc.MarkDelivered(ctx, m.ID); err != nil {
		t.Fatal(err)
	}

	if err := svc.MarkSent(ctx, m.ID); err != nil {
		t.Fatal(err)
	}
	if got := store.message(m.ID); got.Status != StatusDelivered {
		t.Errorf("delivered message downgraded to %q by MarkSent", got.Status)
	}
}

func TestUpdateStatusMonotonic(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	svc := newTestService(store)
	ctx := context.Background()

	m, _, _ := svc.SendMessageWithID(ctx, "m1", conv.ID, "alice", "bob", "hi")

	updated, err := svc.UpdateStatus(ctx, m.ID, StatusRead, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != StatusRead {
		t.Fatalf("status = %q, want read", updated.Status)
	}

	// A later "delivered" report is a silent no-op returning the record.
	unchanged, err := svc.UpdateStatus(ctx, m.ID, StatusDelivered, "bob")
	if err != nil {
		t.Fatal(err)
	}
	if unchanged.Status != StatusRead {
		t.Errorf("status regressed to %q", unchanged.Status)
	}
}

func TestUpdateStatusIgnoresNonParticipant(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	store.addUser(&User{ID: "mallory", Username: "mallory"})
	svc := newTestService(store)
	ctx := context.Background()

	m, _, _ := svc.SendMessageWithID(ctx, "m1", conv.ID, "alice", "bob", "hi")

	got, err := svc.UpdateStatus(ctx, m.ID, StatusRead, "mallory")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != StatusPending {
		t.Errorf("non-participant changed status to %q", got.Status)
	}
	if stored := store.message(m.ID); stored.Status != StatusPending {
		t.Errorf("stored status = %q, want pending", stored.Status)
	}
}

func TestGetConversationMessages(t *testing.T) {
	store := newMemStore()
	conv := seedPair(store)
	svc := newTestService(store)
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		offset := time.Duration(i) * time.Second
		svc.now = func() time.Time { return base.Add(offset) }
		id := string(rune('a' + i))
		if _, _, err := svc.SendMessageWithID(ctx, id, conv.ID, "alice", "bob", "msg "+id); err != nil {
			t.Fatal(err)
		}
	}
	svc.now = time.Now

	messages, err := svc.GetConversationMessages(ctx, conv.ID, "bob", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(messages) != 3 {
		t.Fatalf("len = %d, want 3", len(messages))
	}
	for i := 1; i < len(messages); i++ {
		if messages[i-1].CreatedAt < messages[i].CreatedAt {
			t.Error("messages not newest-first")
		}
	}

	if _, err := svc.GetConversationMessages(ctx, conv.ID, "mallory", 10, 0); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("non-participant read: got %v, want ErrNotParticipant", err)
	}
	if _, err := svc.GetConversationMessages(ctx, "nope", "bob", 10, 0); !errors.Is(err, ErrConversationGone) {
		t.Errorf("missing conversation: got %v, want ErrConversationGone", err)
	}
}
