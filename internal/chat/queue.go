package chat

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"privchat/internal/metrics"
)

// backoffSchedule is the fixed sequence of retry delays for offline
// delivery. Attempts past the end reuse the last entry.
var backoffSchedule = []time.Duration{
	0,
	1 * time.Second,
	3 * time.Second,
	7 * time.Second,
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

type queuedDelivery struct {
	msg         *Message
	attempt     int
	nextRetryAt time.Time
}

// DeliveryQueue retries messages whose recipient was offline at send time.
// The in-memory map is volatile; persisted pending messages are the source
// of truth and Rebuild reloads them at startup. Each message has at most one
// outstanding attempt: due entries are removed from the map for the duration
// of the attempt and re-inserted only if they must be retried again.
type DeliveryQueue struct {
	mu      sync.Mutex
	entries map[string]*queuedDelivery

	registry *Registry
	svc      *Service
	store    Store
	tick     time.Duration
	log      zerolog.Logger
	now      func() time.Time

	stop chan struct{}
	done chan struct{}
}

func NewDeliveryQueue(registry *Registry, svc *Service, store Store, tick time.Duration, log zerolog.Logger) *DeliveryQueue {
	return &DeliveryQueue{
		entries:  make(map[string]*queuedDelivery),
		registry: registry,
		svc:      svc,
		store:    store,
		tick:     tick,
		log:      log.With().Str("component", "delivery_queue").Logger(),
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Dispatch routes a freshly created message. An online recipient gets the
// envelope immediately and the message is marked delivered; an offline
// recipient leaves the message pending and queued with an immediate first
// retry. Returns true on the immediate path.
func (q *DeliveryQueue) Dispatch(ctx context.Context, m *Message, senderUsername string) bool {
	if !q.registry.IsOnline(m.RecipientID) {
		q.Enqueue(m)
		return false
	}

	q.registry.SendToUser(m.RecipientID, q.messageFrame(m, senderUsername))
	if err := q.svc.MarkDelivered(ctx, m.ID); err != nil {
		q.log.Error().Err(err).Str("messageId", m.ID).Msg("mark delivered failed")
	}
	metrics.MessagesDelivered.WithLabelValues("immediate").Inc()
	return true
}

// Enqueue schedules a message for retry, due immediately.
func (q *DeliveryQueue) Enqueue(m *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries[m.ID] = &queuedDelivery{msg: m, nextRetryAt: q.now()}
	metrics.QueueDepth.Set(float64(len(q.entries)))
}

// Rebuild reloads the queue from persisted pending messages. Called once at
// startup before Start.
func (q *DeliveryQueue) Rebuild(ctx context.Context) error {
	pending, err := q.store.PendingMessages(ctx)
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	now := q.now()
	for _, m := range pending {
		q.entries[m.ID] = &queuedDelivery{msg: m, nextRetryAt: now}
	}
	metrics.QueueDepth.Set(float64(len(q.entries)))

	q.log.Info().Int("count", len(pending)).Msg("delivery queue rebuilt")
	return nil
}

// Depth returns the number of queued messages for one recipient.
func (q *DeliveryQueue) Depth(recipientID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, e := range q.entries {
		if e.msg.RecipientID == recipientID {
			n++
		}
	}
	return n
}

// Len returns the total queue depth.
func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Start runs the retry loop until Stop is called.
func (q *DeliveryQueue) Start() {
	go func() {
		defer close(q.done)
		ticker := time.NewTicker(q.tick)
		defer ticker.Stop()

		for {
			select {
			case <-q.stop:
				return
			case <-ticker.C:
				q.RunTick(context.Background())
			}
		}
	}()
}

// Stop shuts the retry loop down and waits for the current tick to finish.
func (q *DeliveryQueue) Stop() {
	close(q.stop)
	<-q.done
}

// RunTick processes every entry that is due. Exported so startup and tests
// can drive the queue without the ticker.
func (q *DeliveryQueue) RunTick(ctx context.Context) {
	now := q.now()

	q.mu.Lock()
	var due []*queuedDelivery
	for id, e := range q.entries {
		if !e.nextRetryAt.After(now) {
			due = append(due, e)
			delete(q.entries, id)
		}
	}
	metrics.QueueDepth.Set(float64(len(q.entries)))
	q.mu.Unlock()

	for _, e := range due {
		q.attempt(ctx, e)
	}
}

func (q *DeliveryQueue) attempt(ctx context.Context, e *queuedDelivery) {
	metrics.RetryAttempts.Inc()
	m := e.msg

	recipient, err := q.store.FindUserByID(ctx, m.RecipientID)
	if err != nil {
		q.log.Warn().Err(err).Str("messageId", m.ID).Msg("recipient lookup failed, will retry")
		q.requeue(e)
		return
	}
	if recipient == nil || recipient.Deleted() {
		if err := q.svc.MarkFailed(ctx, m.ID); err != nil {
			q.log.Error().Err(err).Str("messageId", m.ID).Msg("mark failed failed")
		}
		q.log.Info().Str("messageId", m.ID).Str("recipientId", m.RecipientID).
			Msg("recipient deleted, message dropped")
		return
	}

	if !q.registry.IsOnline(m.RecipientID) {
		q.requeue(e)
		return
	}

	senderUsername := ""
	if sender, err := q.store.FindUserByID(ctx, m.SenderID); err == nil && sender != nil {
		senderUsername = sender.Username
	}

	q.registry.SendToUser(m.RecipientID, q.messageFrame(m, senderUsername))
	if err := q.svc.MarkSent(ctx, m.ID); err != nil {
		q.log.Error().Err(err).Str("messageId", m.ID).Msg("mark sent failed")
	}
	metrics.MessagesDelivered.WithLabelValues("retry").Inc()

	q.notifySender(m)
}

func (q *DeliveryQueue) requeue(e *queuedDelivery) {
	e.attempt++
	idx := e.attempt
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	e.nextRetryAt = q.now().Add(backoffSchedule[idx])

	q.mu.Lock()
	q.entries[e.msg.ID] = e
	metrics.QueueDepth.Set(float64(len(q.entries)))
	q.mu.Unlock()
}

// messageFrame builds the outbound message envelope. The envelope id is the
// message id so the recipient can ack it directly.
func (q *DeliveryQueue) messageFrame(m *Message, senderUsername string) []byte {
	env, err := NewEnvelope(TypeMessage, MessagePayload{
		SenderID:       m.SenderID,
		SenderUsername: senderUsername,
		RecipientID:    m.RecipientID,
		Content:        m.Content,
		ConversationID: m.ConversationID,
		Status:         string(m.Status),
	})
	if err != nil {
		return nil
	}
	env.ID = m.ID
	frame, err := marshalEnvelope(env)
	if err != nil {
		return nil
	}
	return frame
}

// notifySender tells a still-connected sender that the queued message made
// it to the recipient.
func (q *DeliveryQueue) notifySender(m *Message) {
	if !q.registry.IsOnline(m.SenderID) {
		return
	}
	frame, err := MarshalFrame(TypeAck, AckPayload{
		MessageID:       m.ID,
		ConversationID:  m.ConversationID,
		Status:          string(StatusDelivered),
		ServerTimestamp: uint64(q.now().UnixMilli()),
	})
	if err != nil {
		return
	}
	q.registry.SendToUser(m.SenderID, frame)
}
