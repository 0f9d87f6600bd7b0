package user

import (
	"context"
	"strconv"
	"sync"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	users map[string]*User
	next  uint64
}

var _ Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*User)}
}

func clone(u *User) *User {
	cp := *u
	cp.PasswordHash = append([]byte(nil), u.PasswordHash...)
	return &cp
}

func (m *MemoryRepository) conflicts(u *User) bool {
	for _, existing := range m.users {
		if u.Email != "" && existing.Email == u.Email {
			return true
		}
		if u.Phone != "" && existing.Phone == u.Phone {
			return true
		}
		if u.GoogleID != "" && existing.GoogleID == u.GoogleID {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts(u) {
		return ErrUserExists
	}
	m.next++
	u.ID = strconv.FormatUint(m.next, 10)
	m.users[u.ID] = clone(u)
	return nil
}

func (m *MemoryRepository) find(match func(*User) bool) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.users {
		if match(u) {
			return clone(u), nil
		}
	}
	return nil, ErrUserNotFound
}

func (m *MemoryRepository) FindByID(_ context.Context, id string) (*User, error) {
	return m.find(func(u *User) bool { return u.ID == id })
}

func (m *MemoryRepository) FindByIdentifier(ctx context.Context, identifier string) (*User, error) {
	if identifier == "" {
		return nil, ErrUserNotFound
	}
	if u, err := m.FindByEmail(ctx, identifier); err == nil {
		return u, nil
	}
	return m.find(func(u *User) bool { return u.Phone == identifier })
}

func (m *MemoryRepository) FindByEmail(_ context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrUserNotFound
	}
	return m.find(func(u *User) bool { return u.Email == email })
}

func (m *MemoryRepository) FindByGoogleID(_ context.Context, googleID string) (*User, error) {
	if googleID == "" {
		return nil, ErrUserNotFound
	}
	return m.find(func(u *User) bool { return u.GoogleID == googleID })
}

func (m *MemoryRepository) LinkGoogleID(_ context.Context, id, googleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	for otherID, other := range m.users {
		if otherID != id && other.GoogleID == googleID {
			return ErrUserExists
		}
	}
	u.GoogleID = googleID
	return nil
}
