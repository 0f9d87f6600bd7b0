package room

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeweave/backend/internal/apperr"
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

func sequenceCodes(codes ...string) CodeGenerator {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := codes[i%len(codes)]
		i++
		return c, nil
	}
}

func TestCreateRoomSeedsDefaultFile(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	created, err := svc.CreateRoom(ctx, "Pairing", "user-1")
	require.NoError(t, err)
	assert.Regexp(t, codePattern, created.RoomID)
	assert.Equal(t, "Pairing", created.Name)

	joined, err := svc.GetRoom(ctx, created.RoomID)
	require.NoError(t, err)
	require.Len(t, joined.Files, 1)
	f := joined.Files[0]
	assert.Equal(t, "main.js", f.Name)
	assert.Equal(t, "// Welcome to CodeWeave\n", f.Content)
	assert.Equal(t, "javascript", f.Language)
	assert.NotEmpty(t, f.ID)
}

func TestCreateRoomCodesAreUnique(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()

	seen := make(map[string]struct{})
	for i := 0; i < 500; i++ {
		r, err := svc.CreateRoom(ctx, "room", "owner")
		require.NoError(t, err)
		_, dup := seen[r.RoomID]
		require.False(t, dup, "duplicate code %s", r.RoomID)
		seen[r.RoomID] = struct{}{}
	}
}

func TestCreateRoomRetriesOnCollision(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := NewService(repo, WithCodeGenerator(sequenceCodes("AAAAAA")))
	_, err := first.CreateRoom(ctx, "one", "")
	require.NoError(t, err)

	second := NewService(repo, WithCodeGenerator(sequenceCodes("AAAAAA", "AAAAAA", "BBBBBB")))
	r, err := second.CreateRoom(ctx, "two", "")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBB", r.RoomID)
}

func TestCreateRoomGivesUpAfterMaxAttempts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	svc := NewService(repo, WithCodeGenerator(sequenceCodes("AAAAAA")), WithMaxAttempts(3))

	_, err := svc.CreateRoom(ctx, "one", "")
	require.NoError(t, err)

	_, err = svc.CreateRoom(ctx, "two", "")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.Conflict))
	assert.Equal(t, http.StatusConflict, apperr.As(err).Status)
}

func TestCreateRoomRequiresName(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	_, err := svc.CreateRoom(context.Background(), "  ", "owner")
	assert.True(t, apperr.IsKind(err, apperr.Validation))
}

func TestGetRoomUnknownIsNotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	_, err := svc.GetRoom(context.Background(), "ZZZZZZ")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

func TestGetRoomNormalizesCode(t *testing.T) {
	svc := NewService(NewMemoryRepository(), WithCodeGenerator(sequenceCodes("A1B2C3")))
	ctx := context.Background()
	_, err := svc.CreateRoom(ctx, "demo", "")
	require.NoError(t, err)

	r, err := svc.GetRoom(ctx, " a1b2c3 ")
	require.NoError(t, err)
	assert.Equal(t, "A1B2C3", r.RoomID)
}

func TestGetRoomReturnsCopies(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	created, err := svc.CreateRoom(ctx, "demo", "")
	require.NoError(t, err)

	a, err := svc.GetRoom(ctx, created.RoomID)
	require.NoError(t, err)
	a.Files[0].Content = "mutated"

	b, err := svc.GetRoom(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, DefaultFileContent, b.Files[0].Content)
}

func TestListRoomsByOwnerNewestFirst(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	svc := NewService(NewMemoryRepository(), WithClock(clock))
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		_, err := svc.CreateRoom(ctx, name, "owner-1")
		require.NoError(t, err)
	}
	_, err := svc.CreateRoom(ctx, "someone else", "owner-2")
	require.NoError(t, err)

	list, err := svc.ListRoomsByOwner(ctx, "owner-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "third", list[0].Name)
	assert.Equal(t, "second", list[1].Name)
	assert.Equal(t, "first", list[2].Name)
	assert.Equal(t, 1, list[0].FileCount)

	empty, err := svc.ListRoomsByOwner(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestUpdateFileContent(t *testing.T) {
	svc := NewService(NewMemoryRepository())
	ctx := context.Background()
	created, err := svc.CreateRoom(ctx, "demo", "")
	require.NoError(t, err)
	fileID := created.Files[0].ID

	require.NoError(t, svc.UpdateFileContent(ctx, created.RoomID, fileID, "console.log(1)"))
	r, err := svc.GetRoom(ctx, created.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", r.Files[0].Content)

	err = svc.UpdateFileContent(ctx, created.RoomID, "missing", "x")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
	err = svc.UpdateFileContent(ctx, "NOROOM", fileID, "x")
	assert.True(t, apperr.IsKind(err, apperr.NotFound))
}

type failingRepo struct{ *MemoryRepository }

func (failingRepo) FindByID(context.Context, string) (*Room, error) {
	return nil, errors.Join(ErrUnavailable, errors.New("server selection timeout"))
}

func TestStoreUnavailableMapsTo503(t *testing.T) {
	svc := NewService(failingRepo{NewMemoryRepository()})
	_, err := svc.GetRoom(context.Background(), "ABCDEF")
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.StoreUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, apperr.As(err).Status)
}

type gatedRepo struct {
	*MemoryRepository
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int32
}

func (g *gatedRepo) FindByID(ctx context.Context, roomID string) (*Room, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.started <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return g.MemoryRepository.FindByID(ctx, roomID)
}

func TestGetRoomSurvivesFirstCallerCancelling(t *testing.T) {
	repo := &gatedRepo{
		MemoryRepository: NewMemoryRepository(),
		started:          make(chan struct{}, 4),
		release:          make(chan struct{}),
	}
	svc := NewService(repo)
	created, err := svc.CreateRoom(context.Background(), "demo", "")
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.GetRoom(firstCtx, created.RoomID)
		firstErr <- err
	}()
	<-repo.started

	type result struct {
		r   *Room
		err error
	}
	second := make(chan result, 1)
	go func() {
		r, err := svc.GetRoom(context.Background(), created.RoomID)
		second <- result{r, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	time.Sleep(20 * time.Millisecond)
	close(repo.release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, created.RoomID, res.r.RoomID)

	repo.mu.Lock()
	defer repo.mu.Unlock()
	assert.Equal(t, int32(1), repo.calls)
}

func TestValidCode(t *testing.T) {
	assert.True(t, ValidCode("A1B2C3"))
	assert.False(t, ValidCode("a1b2c3"))
	assert.False(t, ValidCode("A1B2C"))
	code, err := NewCode()
	require.NoError(t, err)
	assert.True(t, ValidCode(code))
}
