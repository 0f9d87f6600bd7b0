package room

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeweave/backend/internal/store"
)

func newMongoRepo(t *testing.T) *MongoRepository {
	t.Helper()
	cfg := store.DefaultMongoConfig()
	cfg.Database = "codeweave_room_test"
	cfg.PingTimeout = time.Second
	cfg.SelectTimeout = time.Second
	cfg.RequirePingOnUp = true

	db, err := store.NewMongoDB(cfg)
	if err != nil {
		t.Skipf("skip: mongodb not available: %v", err)
	}
	ctx := context.Background()
	t.Cleanup(func() {
		_ = db.Collection(store.RoomsCollection).Drop(ctx)
		_ = db.Close(ctx)
	})
	_ = db.Collection(store.RoomsCollection).Drop(ctx)
	require.NoError(t, db.EnsureIndexes(ctx))
	return NewMongoRepository(db)
}

func TestMongoRepositoryRoundTrip(t *testing.T) {
	repo := newMongoRepo(t)
	ctx := context.Background()
	svc := NewService(repo, WithCodeGenerator(sequenceCodes("MONGO1", "MONGO1", "MONGO2")))

	a, err := svc.CreateRoom(ctx, "first", "owner")
	require.NoError(t, err)
	b, err := svc.CreateRoom(ctx, "second", "owner")
	require.NoError(t, err)
	assert.Equal(t, "MONGO1", a.RoomID)
	assert.Equal(t, "MONGO2", b.RoomID)

	got, err := svc.GetRoom(ctx, "MONGO1")
	require.NoError(t, err)
	assert.Equal(t, DefaultFileName, got.Files[0].Name)

	list, err := svc.ListRoomsByOwner(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].FileCount)

	require.NoError(t, svc.UpdateFileContent(ctx, "MONGO1", got.Files[0].ID, "let x = 1"))
	got, err = svc.GetRoom(ctx, "MONGO1")
	require.NoError(t, err)
	assert.Equal(t, "let x = 1", got.Files[0].Content)

	_, err = repo.FindByID(ctx, "NOPE00")
	assert.ErrorIs(t, err, ErrNotFound)
}
