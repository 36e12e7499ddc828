package realtime

import (
	"sync"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"kanban-api/domain"
)

// Subscriber is a live endpoint receiving events for a room. *Connection is
// the production implementation; tests plug their own.
type Subscriber interface {
	ID() string
	Send(payload []byte) error
}

// Hub is the room registry and broadcast fabric. Rooms are created on first
// subscribe and reclaimed when the last subscriber leaves. Delivery is
// best-effort per subscriber and never persisted: whoever is not connected
// when Publish runs never sees the event.
type Hub struct {
	logger *log.Logger

	// mirror, when set, forwards every local publish to the cross-instance
	// relay. Called under mu so remote ordering matches local ordering.
	mirror func(room domain.RoomKey, payload []byte)

	mu    sync.Mutex
	rooms map[domain.RoomKey]map[string]Subscriber
}

// NewHub constructs an empty Hub.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[domain.RoomKey]map[string]Subscriber),
	}
}

// Subscribe adds sub to the room, creating it if absent. Idempotent per
// subscriber ID.
func (h *Hub) Subscribe(key domain.RoomKey, sub Subscriber) {
	h.mu.Lock()
	room := h.rooms[key]
	if room == nil {
		room = make(map[string]Subscriber)
		h.rooms[key] = room
	}
	room[sub.ID()] = sub
	h.mu.Unlock()
}

// Unsubscribe removes sub from the room and reclaims the room when empty.
// Must run on every connection termination, whatever the cause; a stale
// handle left behind would keep receiving events.
func (h *Hub) Unsubscribe(key domain.RoomKey, sub Subscriber) {
	h.mu.Lock()
	if room := h.rooms[key]; room != nil {
		delete(room, sub.ID())
		if len(room) == 0 {
			delete(h.rooms, key)
		}
	}
	h.mu.Unlock()
}

// Publish encodes event once and delivers it to every current subscriber of
// the room, then mirrors it to other instances. Publishes on the same room
// are serialized, so delivery order matches invocation order.
func (h *Hub) Publish(key domain.RoomKey, event any) {
	payload, err := sonic.Marshal(event)
	if err != nil {
		h.logger.WithError(err).WithField("room", key).Error("encode event")
		return
	}

	h.mu.Lock()
	h.deliverLocked(key, payload)
	if h.mirror != nil {
		h.mirror(key, payload)
	}
	h.mu.Unlock()
}

// Deliver fans out an already-encoded payload to local subscribers only.
// Used by the relay for events that originated on another instance.
func (h *Hub) Deliver(key domain.RoomKey, payload []byte) {
	h.mu.Lock()
	h.deliverLocked(key, payload)
	h.mu.Unlock()
}

// deliverLocked isolates per-subscriber faults: a failed send is logged and
// skipped, never surfaced to the publisher or to other subscribers.
func (h *Hub) deliverLocked(key domain.RoomKey, payload []byte) {
	for id, sub := range h.rooms[key] {
		if err := sub.Send(payload); err != nil {
			h.logger.WithFields(log.Fields{
				"room":       key,
				"subscriber": id,
			}).WithError(err).Warn("dropping event for subscriber")
		}
	}
}

// SetMirror installs the cross-instance forwarding hook. Must be called
// before the hub starts receiving publishes.
func (h *Hub) SetMirror(fn func(room domain.RoomKey, payload []byte)) {
	h.mu.Lock()
	h.mirror = fn
	h.mu.Unlock()
}

// RoomSize reports the current subscriber count of a room.
func (h *Hub) RoomSize(key domain.RoomKey) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[key])
}
