package presence

import (
	"context"
	"errors"
	"sort"
	"time"
)

type Status string

const (
	StatusOnline Status = "online"
	StatusAway   Status = "away"
	StatusTyping Status = "typing"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusAway, StatusTyping:
		return true
	}
	return false
}

type Cursor struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Participant is one live connection inside a room.
type Participant struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	Username   string    `json:"username"`
	Color      string    `json:"color"`
	ActiveFile string    `json:"activeFile,omitempty"`
	Cursor     *Cursor   `json:"cursor,omitempty"`
	Status     Status    `json:"status"`
	JoinedAt   time.Time `json:"joinedAt"`
}

var (
	ErrRoomFull      = errors.New("room is full")
	ErrInvalidStatus = errors.New("invalid presence status")
)

// Store is the backing registry for a Tracker. Add checks the limit, assigns a colour and
// inserts in one step per room; a limit of 0 means unlimited. Re-adding a known id replaces it.
// A participant without a colour keeps its previous one, or else gets
// palette[members % len(palette)], counted before it is inserted.
type Store interface {
	Add(ctx context.Context, roomID string, p Participant, limit int, palette []string) ([]Participant, error)
	Remove(ctx context.Context, roomID, participantID string) (Participant, bool, error)
	List(ctx context.Context, roomID string) ([]Participant, error)
	Update(ctx context.Context, roomID, participantID string, fn func(*Participant)) (Participant, bool, error)
}

// PickColor returns the colour for a participant added when n others are present.
func PickColor(palette []string, n int) string {
	if len(palette) == 0 {
		return ""
	}
	return palette[n%len(palette)]
}

// SortByJoin orders participants by join time, then id.
func SortByJoin(ps []Participant) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].JoinedAt.Equal(ps[j].JoinedAt) {
			return ps[i].JoinedAt.Before(ps[j].JoinedAt)
		}
		return ps[i].ID < ps[j].ID
	})
}
