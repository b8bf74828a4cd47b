package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestPresenceBroadcastReachesPartnersOnly(t *testing.T) {
	store := newMemStore()
	store.addUser(&User{ID: "alice", Username: "alice"})
	store.addUser(&User{ID: "bob", Username: "bob"})
	store.addUser(&User{ID: "stranger", Username: "stranger"})
	store.addConversation(&Conversation{ID: "conv1", User1ID: "alice", User2ID: "bob", CreatedAt: 1})

	registry := NewRegistry()
	bob := make(chan []byte, 4)
	stranger := make(chan []byte, 4)
	registry.Register("bob", "c1", bob)
	registry.Register("stranger", "c1", stranger)

	p := NewPresence(store, registry, nil, zerolog.Nop())
	if err := p.MarkOnline(context.Background(), "alice", "alice"); err != nil {
		t.Fatal(err)
	}

	env := &Envelope{}
	select {
	case frame := <-bob:
		if err := json.Unmarshal(frame, env); err != nil {
			t.Fatal(err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("partner received no presence event")
	}
	if env.Type != TypePresence {
		t.Fatalf("type = %q, want presence", env.Type)
	}
	var payload PresencePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.UserID != "alice" || !payload.IsOnline {
		t.Errorf("payload = %+v", payload)
	}

	select {
	case <-stranger:
		t.Fatal("user with no shared conversation received a presence event")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestPresenceOfflineCarriesLastSeen(t *testing.T) {
	store := newMemStore()
	store.addUser(&User{ID: "alice", Username: "alice"})
	store.addUser(&User{ID: "bob", Username: "bob"})
	store.addConversation(&Conversation{ID: "conv1", User1ID: "alice", User2ID: "bob", CreatedAt: 1})

	registry := NewRegistry()
	bob := make(chan []byte, 4)
	registry.Register("bob", "c1", bob)

	p := NewPresence(store, registry, nil, zerolog.Nop())
	if err := p.MarkOffline(context.Background(), "alice", "alice"); err != nil {
		t.Fatal(err)
	}

	// Persisted state follows the event.
	alice, err := store.FindUserByID(context.Background(), "alice")
	if err != nil {
		t.Fatal(err)
	}
	if alice.IsOnline || alice.LastSeenAt == nil {
		t.Errorf("stored user = %+v", alice)
	}

	frame := <-bob
	env := &Envelope{}
	if err := json.Unmarshal(frame, env); err != nil {
		t.Fatal(err)
	}
	var payload PresencePayload
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatal(err)
	}
	if payload.IsOnline {
		t.Error("offline event marked online")
	}
	if payload.LastSeenAt == nil {
		t.Error("offline event missing lastSeenAt")
	}
}

func TestPresenceDeduplicatesPartners(t *testing.T) {
	store := newMemStore()
	store.addUser(&User{ID: "alice", Username: "alice"})
	store.addUser(&User{ID: "bob", Username: "bob"})
	// Two conversations with the same partner should still produce one event.
	store.addConversation(&Conversation{ID: "conv1", User1ID: "alice", User2ID: "bob", CreatedAt: 1})
	store.addConversation(&Conversation{ID: "conv2", User1ID: "alice", User2ID: "bob", CreatedAt: 2})

	registry := NewRegistry()
	bob := make(chan []byte, 4)
	registry.Register("bob", "c1", bob)

	p := NewPresence(store, registry, nil, zerolog.Nop())
	if err := p.MarkOnline(context.Background(), "alice", "alice"); err != nil {
		t.Fatal(err)
	}

	if got := len(bob); got != 1 {
		t.Errorf("partner received %d events, want 1", got)
	}
}
