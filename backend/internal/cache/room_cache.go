package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand/v2"
	"time"

	"github.com/redis/go-redis/v9"

	"codeweave/backend/internal/room"
)

const (
	roomBaseTTL       = 10 * time.Minute
	roomJitter        = 2 * time.Minute
	missingRoomMarker = "-"
	missingRoomTTL    = 30 * time.Second
)

// RoomCache is a read-through cache in front of a room.Repository. Lookups of
// unknown codes are cached as a short-lived marker so guessing codes does not
// reach the database. Writes go to the repository first and then drop the key.
type RoomCache struct {
	next room.Repository
	rdb  redis.UniversalClient
}

var _ room.Repository = (*RoomCache)(nil)

func NewRoomCache(next room.Repository, rdb redis.UniversalClient) *RoomCache {
	return &RoomCache{next: next, rdb: rdb}
}

// spread expiry so rooms cached together do not all miss together
func roomTTL() time.Duration {
	return roomBaseTTL + time.Duration(rand.Int64N(int64(roomJitter)))
}

func (c *RoomCache) Insert(ctx context.Context, r *room.Room) error {
	if err := c.next.Insert(ctx, r); err != nil {
		return err
	}
	// a missing marker may be cached for this code
	c.invalidate(ctx, r.RoomID)
	return nil
}

func (c *RoomCache) FindByID(ctx context.Context, roomID string) (*room.Room, error) {
	r, hit, err := c.read(ctx, roomID)
	if err != nil {
		log.Printf("room cache read roomId=%s: %v", roomID, err)
	}
	if hit {
		if r == nil {
			return nil, room.ErrNotFound
		}
		return r, nil
	}

	r, err = c.next.FindByID(ctx, roomID)
	if errors.Is(err, room.ErrNotFound) {
		if werr := c.rdb.Set(ctx, roomSnapshotKey(roomID), missingRoomMarker, missingRoomTTL).Err(); werr != nil {
			log.Printf("room cache mark missing roomId=%s: %v", roomID, werr)
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	if raw, merr := json.Marshal(r); merr == nil {
		if werr := c.rdb.Set(ctx, roomSnapshotKey(roomID), raw, roomTTL()).Err(); werr != nil {
			log.Printf("room cache write roomId=%s: %v", roomID, werr)
		}
	}
	return r, nil
}

func (c *RoomCache) ListByOwner(ctx context.Context, ownerID string) ([]room.Summary, error) {
	return c.next.ListByOwner(ctx, ownerID)
}

func (c *RoomCache) UpdateFileContent(ctx context.Context, roomID, fileID, content string) error {
	if err := c.next.UpdateFileContent(ctx, roomID, fileID, content); err != nil {
		return err
	}
	c.invalidate(ctx, roomID)
	return nil
}

// read reports hit=true with a nil room for a cached missing marker.
func (c *RoomCache) read(ctx context.Context, roomID string) (*room.Room, bool, error) {
	raw, err := c.rdb.Get(ctx, roomSnapshotKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if raw == missingRoomMarker {
		return nil, true, nil
	}
	var r room.Room
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *RoomCache) invalidate(ctx context.Context, roomID string) {
	if err := c.rdb.Del(ctx, roomSnapshotKey(roomID)).Err(); err != nil {
		log.Printf("room cache invalidate roomId=%s: %v", roomID, err)
	}
}
