package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"privchat/internal/metrics"
)

// Page bound when listing a user's conversations for presence fan-out.
const presencePageSize = 200

// Presence persists online state transitions and broadcasts them to
// conversation partners. Users who share no conversation with the actor
// never see the event; that is a privacy boundary, not an optimization.
type Presence struct {
	store    Store
	registry *Registry
	relay    *Relay
	log      zerolog.Logger
	now      func() time.Time
}

func NewPresence(store Store, registry *Registry, relay *Relay, log zerolog.Logger) *Presence {
	return &Presence{
		store:    store,
		registry: registry,
		relay:    relay,
		log:      log.With().Str("component", "presence").Logger(),
		now:      time.Now,
	}
}

// MarkOnline flags the user online and notifies their conversation partners.
func (p *Presence) MarkOnline(ctx context.Context, userID, username string) error {
	return p.mark(ctx, userID, username, true)
}

// MarkOffline flags the user offline, stamping last-seen-at, and notifies
// their conversation partners.
func (p *Presence) MarkOffline(ctx context.Context, userID, username string) error {
	return p.mark(ctx, userID, username, false)
}

func (p *Presence) mark(ctx context.Context, userID, username string, online bool) error {
	at := p.now().UnixMilli()
	if err := p.store.SetOnline(ctx, userID, online, at); err != nil {
		return fmt.Errorf("persist presence: %w", err)
	}

	payload := PresencePayload{
		UserID:   userID,
		Username: username,
		IsOnline: online,
	}
	if !online {
		payload.LastSeenAt = &at
	}

	if err := p.Broadcast(ctx, payload); err != nil {
		p.log.Warn().Err(err).Str("userId", userID).Msg("presence broadcast failed")
	}
	if p.relay != nil {
		if err := p.relay.PublishPresence(ctx, payload); err != nil {
			p.log.Warn().Err(err).Str("userId", userID).Msg("presence relay publish failed")
		}
	}
	return nil
}

// Broadcast fans a presence event out to every local connection of the
// actor's conversation partners.
func (p *Presence) Broadcast(ctx context.Context, payload PresencePayload) error {
	partners, err := p.partners(ctx, payload.UserID)
	if err != nil {
		return err
	}
	if len(partners) == 0 {
		return nil
	}

	frame, err := MarshalFrame(TypePresence, payload)
	if err != nil {
		return err
	}

	delivered := p.registry.BroadcastToUsers(partners, frame)
	if delivered > 0 {
		metrics.PresenceBroadcasts.Add(float64(delivered))
	}
	return nil
}

// partners lists the de-duplicated ids of users sharing a conversation with
// userID, bounded by the presence page size.
func (p *Presence) partners(ctx context.Context, userID string) ([]string, error) {
	conversations, err := p.store.ConversationsForUser(ctx, userID, presencePageSize, 0)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	seen := make(map[string]bool, len(conversations))
	partners := make([]string, 0, len(conversations))
	for _, c := range conversations {
		partner := c.Partner(userID)
		if partner == userID || seen[partner] {
			continue
		}
		seen[partner] = true
		partners = append(partners, partner)
	}
	return partners, nil
}
