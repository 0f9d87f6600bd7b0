package cache

import (
	"context"
	"encoding/json"
	"log"

	redis "github.com/redis/go-redis/v9"
)

// envelope is what travels on a room channel. Exclude is the connection id of the
// sender, which must not get its own event back.
type envelope struct {
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// DeliverFunc hands a relayed event to the local connections of a room.
type DeliverFunc func(roomID, exclude string, payload []byte)

// RedisBus fans room events out to every relay instance subscribed to the same Redis.
type RedisBus struct {
	rdb redis.UniversalClient
}

func NewRedisBus(rdb redis.UniversalClient) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, roomID, exclude string, payload []byte) error {
	data, err := json.Marshal(envelope{Exclude: exclude, Payload: payload})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, roomChannel(roomID), data).Err()
}

// Subscribe blocks, delivering every room event until ctx is done. The returned
// channel is closed once the subscription is established.
func (b *RedisBus) Subscribe(ctx context.Context, deliver DeliverFunc) (<-chan struct{}, <-chan error) {
	ready := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		ps := b.rdb.PSubscribe(ctx, roomChannelMatch)
		defer ps.Close()

		if _, err := ps.Receive(ctx); err != nil {
			close(ready)
			done <- err
			return
		}
		close(ready)

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				done <- nil
				return
			case msg, ok := <-ch:
				if !ok {
					done <- nil
					return
				}
				roomID := roomFromChannel(msg.Channel)
				if roomID == "" {
					continue
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					log.Printf("relay bus: drop malformed message on %s: %v", msg.Channel, err)
					continue
				}
				deliver(roomID, env.Exclude, env.Payload)
			}
		}
	}()
	return ready, done
}
