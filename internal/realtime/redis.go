package realtime

import (
	"context"
	"encoding/json"

	"github.com/Harsh4r0ra/chat-cli/internal/backend"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const redisChannel = "termchat:changes"

// RedisBridge relays changes between instances over a single Redis pub/sub
// channel. Every instance receives every change and filters locally.
type RedisBridge struct {
	rdb *redis.Client
}

func NewRedisBridge(url string) (*RedisBridge, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return &RedisBridge{rdb: rdb}, nil
}

func (b *RedisBridge) Publish(ctx context.Context, c backend.Change) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, redisChannel, payload).Err()
}

func (b *RedisBridge) Run(ctx context.Context, deliver func(backend.Change)) error {
	pubsub := b.rdb.Subscribe(ctx, redisChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var c backend.Change
			if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
				log.Warn().Err(err).Msg("redis change decode")
				continue
			}
			deliver(c)
		}
	}
}

func (b *RedisBridge) Close() error {
	return b.rdb.Close()
}
