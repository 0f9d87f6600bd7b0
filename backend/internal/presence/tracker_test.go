package presence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(ps []Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestJoinLeaveList(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0)
	ctx := context.Background()

	got, err := tr.Join(ctx, "ROOM01", Participant{ID: "a", Username: "ada"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(got))

	got, err = tr.Join(ctx, "ROOM01", Participant{ID: "b", Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(got))
	assert.Equal(t, StatusOnline, got[1].Status)
	assert.False(t, got[1].JoinedAt.IsZero())

	left, ok, err := tr.Leave(ctx, "ROOM01", "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ada", left.Username)

	list, err := tr.ListParticipants(ctx, "ROOM01")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids(list))

	_, ok, err = tr.Leave(ctx, "ROOM01", "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRoomsAreIsolated(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0)
	ctx := context.Background()
	_, err := tr.Join(ctx, "R1", Participant{ID: "a"})
	require.NoError(t, err)
	_, err = tr.Join(ctx, "R2", Participant{ID: "b"})
	require.NoError(t, err)

	r1, err := tr.ListParticipants(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(r1))
}

func TestEmptyRoomIsPruned(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 0)
	ctx := context.Background()

	_, err := tr.Join(ctx, "R1", Participant{ID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 1, store.Rooms())

	_, _, err = tr.Leave(ctx, "R1", "a")
	require.NoError(t, err)
	assert.Equal(t, 0, store.Rooms())

	list, err := tr.ListParticipants(ctx, "R1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestParticipantCap(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 2)
	ctx := context.Background()

	_, err := tr.Join(ctx, "R1", Participant{ID: "a"})
	require.NoError(t, err)
	_, err = tr.Join(ctx, "R1", Participant{ID: "b"})
	require.NoError(t, err)
	_, err = tr.Join(ctx, "R1", Participant{ID: "c"})
	assert.ErrorIs(t, err, ErrRoomFull)

	// re-joining an existing participant does not count twice
	_, err = tr.Join(ctx, "R1", Participant{ID: "a", Username: "renamed"})
	require.NoError(t, err)

	_, _, err = tr.Leave(ctx, "R1", "b")
	require.NoError(t, err)
	_, err = tr.Join(ctx, "R1", Participant{ID: "c"})
	require.NoError(t, err)
}

func TestConcurrentJoinsRespectCap(t *testing.T) {
	const limit = 5
	tr := NewTracker(NewMemoryStore(), limit)
	ctx := context.Background()

	var ok, full int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Join(ctx, "R1", Participant{ID: fmt.Sprintf("p%d", i)})
			if err == nil {
				atomic.AddInt32(&ok, 1)
			} else if errors.Is(err, ErrRoomFull) {
				atomic.AddInt32(&full, 1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(limit), ok)
	assert.Equal(t, int32(50-limit), full)
	list, err := tr.ListParticipants(ctx, "R1")
	require.NoError(t, err)
	assert.Len(t, list, limit)
}

func TestConcurrentJoinLeaveKeepsSetConsistent(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i)
			_, _ = tr.Join(ctx, "R1", Participant{ID: id})
			_, _, _ = tr.Leave(ctx, "R1", id)
		}(i)
	}
	wg.Wait()

	list, err := tr.ListParticipants(ctx, "R1")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, 0, store.Rooms())
}

func TestColorsFollowJoinOrder(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0)
	ctx := context.Background()

	a, err := tr.Join(ctx, "R1", Participant{ID: "a"})
	require.NoError(t, err)
	b, err := tr.Join(ctx, "R1", Participant{ID: "b"})
	require.NoError(t, err)
	c, err := tr.Join(ctx, "R1", Participant{ID: "c", Color: "#123456"})
	require.NoError(t, err)

	assert.Equal(t, DefaultPalette[0], a[0].Color)
	assert.Equal(t, DefaultPalette[1], b[1].Color)
	assert.Equal(t, "#123456", c[2].Color)
}

func TestConcurrentJoinsGetDistinctColors(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0)
	ctx := context.Background()

	n := len(DefaultPalette)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := tr.Join(ctx, "R1", Participant{ID: fmt.Sprintf("p%d", i)})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	list, err := tr.ListParticipants(ctx, "R1")
	require.NoError(t, err)
	require.Len(t, list, n)
	seen := make(map[string]bool)
	for _, p := range list {
		seen[p.Color] = true
	}
	assert.Len(t, seen, n)
}

func TestRejoinKeepsColor(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0)
	ctx := context.Background()

	_, err := tr.Join(ctx, "R1", Participant{ID: "a"})
	require.NoError(t, err)
	_, err = tr.Join(ctx, "R1", Participant{ID: "b"})
	require.NoError(t, err)
	list, err := tr.Join(ctx, "R1", Participant{ID: "b", Username: "again"})
	require.NoError(t, err)
	assert.Equal(t, DefaultPalette[1], list[1].Color)
	assert.Equal(t, "again", list[1].Username)
}

func TestUpdateCursorAndStatus(t *testing.T) {
	tr := NewTracker(NewMemoryStore(), 0)
	ctx := context.Background()
	_, err := tr.Join(ctx, "R1", Participant{ID: "a"})
	require.NoError(t, err)

	p, ok, err := tr.UpdateCursor(ctx, "R1", "a", "file-1", Cursor{Line: 3, Column: 7})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, &Cursor{Line: 3, Column: 7}, p.Cursor)
	assert.Equal(t, "file-1", p.ActiveFile)

	p, ok, err = tr.UpdateStatus(ctx, "R1", "a", StatusTyping)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusTyping, p.Status)

	_, _, err = tr.UpdateStatus(ctx, "R1", "a", Status("sleeping"))
	assert.ErrorIs(t, err, ErrInvalidStatus)

	_, ok, err = tr.UpdateCursor(ctx, "R1", "ghost", "", Cursor{})
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, tr.Touch(ctx, "R1", "a"))
}
