package presence

import (
	"context"
	"sort"
	"sync"
)

type roomSet struct {
	mu      sync.Mutex
	members map[string]Participant
	order   map[string]uint64
	next    uint64
	dead    bool // set once pruned from the store map
}

// MemoryStore is the single-instance backing store. Each room has its own lock, so
// mutations to one room are serialized without blocking other rooms.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*roomSet
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]*roomSet)}
}

// lockRoom returns the room's set locked, creating it when create is true.
func (m *MemoryStore) lockRoom(roomID string, create bool) *roomSet {
	for {
		m.mu.Lock()
		set, ok := m.rooms[roomID]
		if !ok {
			if !create {
				m.mu.Unlock()
				return nil
			}
			set = &roomSet{members: make(map[string]Participant), order: make(map[string]uint64)}
			m.rooms[roomID] = set
		}
		m.mu.Unlock()

		set.mu.Lock()
		if !set.dead {
			return set
		}
		set.mu.Unlock()
	}
}

func (s *roomSet) list() []Participant {
	out := make([]Participant, 0, len(s.members))
	for _, p := range s.members {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return s.order[out[i].ID] < s.order[out[j].ID] })
	return out
}

func (m *MemoryStore) Add(_ context.Context, roomID string, p Participant, limit int, palette []string) ([]Participant, error) {
	set := m.lockRoom(roomID, true)
	defer set.mu.Unlock()

	prev, exists := set.members[p.ID]
	if !exists {
		if limit > 0 && len(set.members) >= limit {
			return nil, ErrRoomFull
		}
		set.next++
		set.order[p.ID] = set.next
	}
	if p.Color == "" {
		if exists && prev.Color != "" {
			p.Color = prev.Color
		} else {
			others := len(set.members)
			if exists {
				others--
			}
			p.Color = PickColor(palette, others)
		}
	}
	set.members[p.ID] = p
	return set.list(), nil
}

func (m *MemoryStore) Remove(_ context.Context, roomID, participantID string) (Participant, bool, error) {
	set := m.lockRoom(roomID, false)
	if set == nil {
		return Participant{}, false, nil
	}
	p, ok := set.members[participantID]
	delete(set.members, participantID)
	delete(set.order, participantID)
	empty := len(set.members) == 0
	set.mu.Unlock()

	if empty {
		m.prune(roomID, set)
	}
	return p, ok, nil
}

func (m *MemoryStore) prune(roomID string, set *roomSet) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set.mu.Lock()
	defer set.mu.Unlock()
	if len(set.members) == 0 && m.rooms[roomID] == set {
		set.dead = true
		delete(m.rooms, roomID)
	}
}

func (m *MemoryStore) List(_ context.Context, roomID string) ([]Participant, error) {
	set := m.lockRoom(roomID, false)
	if set == nil {
		return []Participant{}, nil
	}
	defer set.mu.Unlock()
	return set.list(), nil
}

func (m *MemoryStore) Update(_ context.Context, roomID, participantID string, fn func(*Participant)) (Participant, bool, error) {
	set := m.lockRoom(roomID, false)
	if set == nil {
		return Participant{}, false, nil
	}
	defer set.mu.Unlock()
	p, ok := set.members[participantID]
	if !ok {
		return Participant{}, false, nil
	}
	fn(&p)
	set.members[participantID] = p
	return p, true, nil
}

// Rooms reports how many rooms currently hold participants.
func (m *MemoryStore) Rooms() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}
