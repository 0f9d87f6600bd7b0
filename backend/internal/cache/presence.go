package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"codeweave/backend/internal/presence"
)

// addScript drops expired members, enforces the limit, assigns a colour and inserts, in
// one step per room.
// KEYS[1]=members hash, KEYS[2]=alive zset
// ARGV: id, json, now ms, expireAt ms, limit, key ttl seconds, needs colour ("1"|"0"), palette...
var addScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[3])
for _, id in ipairs(expired) do
	redis.call("HDEL", KEYS[1], id)
end
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[3])
local exists = redis.call("HEXISTS", KEYS[1], ARGV[1])
local count = redis.call("HLEN", KEYS[1])
local limit = tonumber(ARGV[5])
if exists == 0 and limit > 0 and count >= limit then
	return {0}
end
local data = ARGV[2]
local paletteSize = #ARGV - 7
if ARGV[7] == "1" and paletteSize > 0 then
	local color = nil
	if exists == 1 then
		local prev = cjson.decode(redis.call("HGET", KEYS[1], ARGV[1]))
		if type(prev["color"]) == "string" and prev["color"] ~= "" then
			color = prev["color"]
		end
		count = count - 1
	end
	if color == nil then
		color = ARGV[8 + (count % paletteSize)]
	end
	local obj = cjson.decode(data)
	obj["color"] = color
	data = cjson.encode(obj)
end
redis.call("HSET", KEYS[1], ARGV[1], data)
redis.call("ZADD", KEYS[2], ARGV[4], ARGV[1])
redis.call("EXPIRE", KEYS[1], ARGV[6])
redis.call("EXPIRE", KEYS[2], ARGV[6])
return {1, redis.call("HVALS", KEYS[1])}
`)

var removeScript = redis.NewScript(`
local v = redis.call("HGET", KEYS[1], ARGV[1])
if not v then
	return false
end
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("ZREM", KEYS[2], ARGV[1])
return v
`)

var listScript = redis.NewScript(`
local expired = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
for _, id in ipairs(expired) do
	redis.call("HDEL", KEYS[1], id)
end
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[1])
return redis.call("HVALS", KEYS[1])
`)

const updateRetries = 3

// RedisPresence shares the presence registry between relay instances. Entries expire
// after ttl unless refreshed, so a crashed instance does not leave ghosts behind.
type RedisPresence struct {
	rdb redis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

var _ presence.Store = (*RedisPresence)(nil)

func NewRedisPresence(rdb redis.UniversalClient, ttl time.Duration) *RedisPresence {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisPresence{rdb: rdb, ttl: ttl, now: time.Now}
}

func (p *RedisPresence) expireAt() int64 { return p.now().Add(p.ttl).UnixMilli() }

func (p *RedisPresence) keyTTL() string {
	return strconv.Itoa(int(p.ttl.Seconds()) * 2)
}

func decodeParticipants(vals []interface{}) ([]presence.Participant, error) {
	out := make([]presence.Participant, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected presence value %T", v)
		}
		var pt presence.Participant
		if err := json.Unmarshal([]byte(s), &pt); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	presence.SortByJoin(out)
	return out, nil
}

func (p *RedisPresence) Add(ctx context.Context, roomID string, pt presence.Participant, limit int, palette []string) ([]presence.Participant, error) {
	data, err := json.Marshal(pt)
	if err != nil {
		return nil, err
	}
	needsColor := "0"
	if pt.Color == "" {
		needsColor = "1"
	}
	args := []interface{}{pt.ID, string(data), p.now().UnixMilli(), p.expireAt(), limit, p.keyTTL(), needsColor}
	for _, c := range palette {
		args = append(args, c)
	}
	res, err := addScript.Run(ctx, p.rdb, []string{membersKey(roomID), aliveKey(roomID)}, args...).Slice()
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return nil, errors.New("unexpected presence script result")
	}
	if added, _ := res[0].(int64); added == 0 {
		return nil, presence.ErrRoomFull
	}
	vals, _ := res[1].([]interface{})
	return decodeParticipants(vals)
}

func (p *RedisPresence) Remove(ctx context.Context, roomID, participantID string) (presence.Participant, bool, error) {
	raw, err := removeScript.Run(ctx, p.rdb, []string{membersKey(roomID), aliveKey(roomID)}, participantID).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return presence.Participant{}, false, nil
		}
		return presence.Participant{}, false, err
	}
	var pt presence.Participant
	if err := json.Unmarshal([]byte(raw), &pt); err != nil {
		return presence.Participant{}, false, err
	}
	return pt, true, nil
}

func (p *RedisPresence) List(ctx context.Context, roomID string) ([]presence.Participant, error) {
	vals, err := listScript.Run(ctx, p.rdb, []string{membersKey(roomID), aliveKey(roomID)}, p.now().UnixMilli()).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []presence.Participant{}, nil
		}
		return nil, err
	}
	return decodeParticipants(vals)
}

// Update is a read-modify-write under WATCH; it also refreshes the entry's expiry.
func (p *RedisPresence) Update(ctx context.Context, roomID, participantID string, fn func(*presence.Participant)) (presence.Participant, bool, error) {
	mk, ak := membersKey(roomID), aliveKey(roomID)
	var (
		out   presence.Participant
		found bool
	)
	txf := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, mk, participantID).Result()
		if errors.Is(err, redis.Nil) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		var pt presence.Participant
		if err := json.Unmarshal([]byte(raw), &pt); err != nil {
			return err
		}
		fn(&pt)
		data, err := json.Marshal(pt)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, mk, participantID, data)
			pipe.ZAdd(ctx, ak, redis.Z{Score: float64(p.expireAt()), Member: participantID})
			pipe.Expire(ctx, mk, 2*p.ttl)
			pipe.Expire(ctx, ak, 2*p.ttl)
			return nil
		})
		if err == nil {
			out, found = pt, true
		}
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := p.rdb.Watch(ctx, txf, mk)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return out, found, err
	}
	return presence.Participant{}, false, redis.TxFailedErr
}
