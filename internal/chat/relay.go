package chat

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const presenceChannel = "presence-events"

// relayEvent is the cross-instance presence message. The origin id lets an
// instance ignore its own publishes, which it has already fanned out locally.
type relayEvent struct {
	Origin  string          `json:"origin"`
	Payload PresencePayload `json:"payload"`
}

// Relay mirrors presence events across server instances through redis
// pub/sub. Message delivery itself is not relayed; the persistent queue
// covers recipients connected elsewhere once instances share a database.
type Relay struct {
	rdb      *redis.Client
	origin   string
	presence *Presence
	log      zerolog.Logger
}

func NewRelay(rdb *redis.Client, log zerolog.Logger) *Relay {
	return &Relay{
		rdb:    rdb,
		origin: uuid.NewString(),
		log:    log.With().Str("component", "presence_relay").Logger(),
	}
}

// Bind attaches the presence service whose local broadcast replays remote
// events. Set once during startup wiring.
func (r *Relay) Bind(p *Presence) {
	r.presence = p
}

// PublishPresence sends a presence event to the other instances.
func (r *Relay) PublishPresence(ctx context.Context, payload PresencePayload) error {
	raw, err := json.Marshal(relayEvent{Origin: r.origin, Payload: payload})
	if err != nil {
		return err
	}
	return r.rdb.Publish(ctx, presenceChannel, raw).Err()
}

// Run subscribes to the presence channel and replays remote events through
// the local registry. Blocks until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, presenceChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var event relayEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				r.log.Warn().Err(err).Msg("bad relay payload")
				continue
			}
			if event.Origin == r.origin || r.presence == nil {
				continue
			}
			if err := r.presence.Broadcast(ctx, event.Payload); err != nil {
				r.log.Warn().Err(err).Str("userId", event.Payload.UserID).
					Msg("relayed presence broadcast failed")
			}
		}
	}
}
