package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"codeweave/backend/internal/collab"
	"codeweave/backend/internal/presence"
	"codeweave/backend/internal/room"
)

// RoomLookup confirms a room exists before anyone joins it. room.Service satisfies it.
type RoomLookup interface {
	GetRoom(ctx context.Context, roomID string) (*room.Room, error)
}

// Bus carries room events between relay instances. Every instance, including the
// publisher, delivers what it receives to its local connections through Hub.Deliver.
type Bus interface {
	Publish(ctx context.Context, roomID, exclude string, payload []byte) error
}

// PendingSource reports edits of a room not yet persisted. collab.Checkpointer satisfies it.
type PendingSource interface {
	Pending(roomID string) map[string]string
}

type Hub struct {
	tracker *presence.Tracker
	rooms   RoomLookup
	bus     Bus
	sinks   []collab.EditSink
	pending PendingSource

	sendQueue int

	mu sync.RWMutex
	// roomID -> set of local connections
	members map[string]map[*Conn]struct{}
	conns   map[*Conn]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type HubOption func(*Hub)

func WithBus(b Bus) HubOption { return func(h *Hub) { h.bus = b } }

func WithSinks(sinks ...collab.EditSink) HubOption {
	return func(h *Hub) { h.sinks = append(h.sinks, sinks...) }
}

func WithPending(p PendingSource) HubOption { return func(h *Hub) { h.pending = p } }

func WithSendQueue(n int) HubOption {
	return func(h *Hub) {
		if n > 0 {
			h.sendQueue = n
		}
	}
}

func NewHub(tracker *presence.Tracker, rooms RoomLookup, opts ...HubOption) *Hub {
	h := &Hub{
		tracker:   tracker,
		rooms:     rooms,
		sendQueue: defaultSendQueue,
		members:   make(map[string]map[*Conn]struct{}),
		conns:     make(map[*Conn]struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Hub) Tracker() *presence.Tracker { return h.tracker }

func (h *Hub) register(c *Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	h.wg.Add(1)
	return true
}

func (h *Hub) unregister(c *Conn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
	h.wg.Done()
}

func (h *Hub) join(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.members[roomID] == nil {
		h.members[roomID] = make(map[*Conn]struct{})
	}
	h.members[roomID][c] = struct{}{}
}

func (h *Hub) leave(roomID string, c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.members[roomID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.members, roomID)
		}
	}
}

// Connections reports the number of open sockets on this instance.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Rooms reports how many rooms have local connections.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

func (h *Hub) pendingFor(roomID string) map[string]string {
	if h.pending == nil {
		return map[string]string{}
	}
	return h.pending.Pending(roomID)
}

func (h *Hub) submitEdit(ctx context.Context, rec collab.EditRecord) {
	for _, s := range h.sinks {
		if err := s.Submit(ctx, rec); err != nil {
			log.Printf("edit sink: drop record room=%s file=%s participant=%s: %v", rec.RoomID, rec.FileID, rec.ParticipantID, err)
		}
	}
}

// Broadcast sends msg to every connection in the room except the one with id exclude.
func (h *Hub) Broadcast(ctx context.Context, roomID, exclude string, msg ServerMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("broadcast: encode %s for room=%s: %v", msg.Event, roomID, err)
		return
	}
	if h.bus != nil {
		err := h.bus.Publish(ctx, roomID, exclude, payload)
		if err == nil {
			return
		}
		log.Printf("broadcast: relay bus publish failed room=%s, delivering locally: %v", roomID, err)
	}
	h.Deliver(roomID, exclude, payload)
}

// Deliver enqueues an encoded event to the local connections of a room.
func (h *Hub) Deliver(roomID, exclude string, payload []byte) {
	h.mu.RLock()
	set := h.members[roomID]
	targets := make([]*Conn, 0, len(set))
	for c := range set {
		if c.id != exclude {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(payload)
	}
}

// Close disconnects every client and waits for their cleanup until ctx is done.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.closeGoingAway("server shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
