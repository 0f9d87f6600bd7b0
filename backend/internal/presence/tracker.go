package presence

import (
	"context"
	"time"
)

var DefaultPalette = []string{"#00d4ff", "#a855f7", "#22c55e", "#f59e0b", "#ef4444", "#ec4899"}

// Tracker is the registry of which participants are in which room. The backing Store
// decides the scope: MemoryStore for one process, a shared store for several.
type Tracker struct {
	store           Store
	maxParticipants int
	palette         []string
	now             func() time.Time
}

// NewTracker caps rooms at maxParticipants; 0 disables the cap.
func NewTracker(store Store, maxParticipants int) *Tracker {
	if maxParticipants < 0 {
		maxParticipants = 0
	}
	return &Tracker{store: store, maxParticipants: maxParticipants, palette: DefaultPalette, now: time.Now}
}

func (t *Tracker) MaxParticipants() int { return t.maxParticipants }

// Join registers p and returns the room's participants including p.
func (t *Tracker) Join(ctx context.Context, roomID string, p Participant) ([]Participant, error) {
	if p.Status == "" {
		p.Status = StatusOnline
	}
	if p.JoinedAt.IsZero() {
		p.JoinedAt = t.now().UTC()
	}
	return t.store.Add(ctx, roomID, p, t.maxParticipants, t.palette)
}

func (t *Tracker) Leave(ctx context.Context, roomID, participantID string) (Participant, bool, error) {
	return t.store.Remove(ctx, roomID, participantID)
}

func (t *Tracker) ListParticipants(ctx context.Context, roomID string) ([]Participant, error) {
	return t.store.List(ctx, roomID)
}

func (t *Tracker) UpdateCursor(ctx context.Context, roomID, participantID, fileID string, c Cursor) (Participant, bool, error) {
	return t.store.Update(ctx, roomID, participantID, func(p *Participant) {
		p.Cursor = &c
		if fileID != "" {
			p.ActiveFile = fileID
		}
	})
}

func (t *Tracker) UpdateStatus(ctx context.Context, roomID, participantID string, status Status) (Participant, bool, error) {
	if !status.Valid() {
		return Participant{}, false, ErrInvalidStatus
	}
	return t.store.Update(ctx, roomID, participantID, func(p *Participant) { p.Status = status })
}

// Touch refreshes the participant's liveness in stores that expire entries.
func (t *Tracker) Touch(ctx context.Context, roomID, participantID string) error {
	_, _, err := t.store.Update(ctx, roomID, participantID, func(*Participant) {})
	return err
}
