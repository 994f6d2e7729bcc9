package broadcast

import (
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/metrics"
	"github.com/dreamware/designsync/internal/protocol"
)

// DefaultOutboxSize is the per-subscriber frame buffer.
const DefaultOutboxSize = 256

// Membership resolves a room to the sessions joined to it.
// *coordinator.RoomRegistry satisfies it.
type Membership interface {
	MemberSessions(roomID string) []string
}

// Router delivers encoded events to the outboxes of a room's members.
//
// Each subscriber has exactly one bounded outbox channel. Because a sender's
// events are published sequentially from its read loop, every subscriber
// observes them in send order. Delivery is best effort: when an outbox is
// full the frame is dropped for that subscriber and counted.
//
// Thread Safety: all methods are safe for concurrent use. Sends happen under
// the read lock and never block; Unregister takes the write lock before
// closing an outbox, so no send can hit a closed channel.
type Router struct {
	membership Membership
	metrics    *metrics.Metrics
	logger     *zap.Logger
	outboxes   map[string]chan []byte
	size       int
	mu         sync.RWMutex
}

// NewRouter creates a router. size <= 0 uses DefaultOutboxSize; a nil logger
// or metrics set is replaced by a no-op one.
func NewRouter(membership Membership, size int, m *metrics.Metrics, logger *zap.Logger) *Router {
	if size <= 0 {
		size = DefaultOutboxSize
	}
	if m == nil {
		m = metrics.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		membership: membership,
		metrics:    m,
		logger:     logger,
		outboxes:   make(map[string]chan []byte),
		size:       size,
	}
}

// Register creates the session's outbox and returns its receive side. The
// channel is closed by Unregister. Registering an existing session returns
// its current outbox.
func (r *Router) Register(sessionID string) <-chan []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.outboxes[sessionID]; ok {
		return ch
	}
	ch := make(chan []byte, r.size)
	r.outboxes[sessionID] = ch
	return ch
}

// Unregister closes and forgets the session's outbox. Idempotent.
func (r *Router) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.outboxes[sessionID]; ok {
		close(ch)
		delete(r.outboxes, sessionID)
	}
}

// Publish encodes ev once and enqueues it to every member of roomID except
// the exclude session (pass "" to include everyone). Returns the number of
// outboxes that accepted the frame.
func (r *Router) Publish(roomID string, ev protocol.Event, exclude string) int {
	frame, err := protocol.Encode(ev)
	if err != nil {
		r.logger.Error("event encode failed", zap.String("type", ev.Type), zap.Error(err))
		return 0
	}

	members := r.membership.MemberSessions(roomID)

	r.mu.RLock()
	defer r.mu.RUnlock()

	delivered := 0
	for _, sessionID := range members {
		if sessionID == exclude {
			continue
		}
		if r.enqueue(sessionID, ev.Type, frame) {
			delivered++
		}
	}
	return delivered
}

// SendTo delivers ev to one session regardless of room membership.
func (r *Router) SendTo(sessionID string, ev protocol.Event) bool {
	frame, err := protocol.Encode(ev)
	if err != nil {
		r.logger.Error("event encode failed", zap.String("type", ev.Type), zap.Error(err))
		return false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enqueue(sessionID, ev.Type, frame)
}

// Sessions returns the number of registered outboxes.
func (r *Router) Sessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outboxes)
}

// enqueue must be called with r.mu held for reading.
func (r *Router) enqueue(sessionID, eventType string, frame []byte) bool {
	ch, ok := r.outboxes[sessionID]
	if !ok {
		return false
	}
	select {
	case ch <- frame:
		r.metrics.EventsPublished.WithLabelValues(eventType).Inc()
		return true
	default:
		r.metrics.EventsDropped.WithLabelValues(eventType).Inc()
		r.logger.Debug("outbox full, frame dropped",
			zap.String("session_id", sessionID),
			zap.String("type", eventType))
		return false
	}
}
