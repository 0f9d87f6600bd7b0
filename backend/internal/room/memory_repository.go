package room

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository keeps rooms in process memory. Used when no database is configured.
type MemoryRepository struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	seq   map[string]int // insertion order, breaks created_at ties
	next  int
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rooms: make(map[string]*Room), seq: make(map[string]int)}
}

func (m *MemoryRepository) Insert(_ context.Context, r *Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[r.RoomID]; ok {
		return ErrDuplicateCode
	}
	m.rooms[r.RoomID] = r.Clone()
	m.next++
	m.seq[r.RoomID] = m.next
	return nil
}

func (m *MemoryRepository) FindByID(_ context.Context, roomID string) (*Room, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

func (m *MemoryRepository) ListByOwner(_ context.Context, ownerID string) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Summary, 0)
	for _, r := range m.rooms {
		if r.OwnerID != ownerID {
			continue
		}
		out = append(out, Summary{
			RoomID:    r.RoomID,
			Name:      r.Name,
			OwnerID:   r.OwnerID,
			CreatedAt: r.CreatedAt,
			FileCount: len(r.Files),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.seq[out[i].RoomID] > m.seq[out[j].RoomID]
	})
	return out, nil
}

func (m *MemoryRepository) UpdateFileContent(_ context.Context, roomID, fileID, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrNotFound
	}
	for i := range r.Files {
		if r.Files[i].ID == fileID {
			r.Files[i].Content = content
			return nil
		}
	}
	return ErrFileNotFound
}
