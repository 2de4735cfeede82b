package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RoomChannelPrefix prefixes the Redis channel of every room.
const RoomChannelPrefix = "chat:room:"

// Broadcaster fans envelopes out to every process hosting sessions.
type Broadcaster interface {
	Publish(ctx context.Context, env Envelope) error
	// Subscribe starts delivering envelopes to deliver until ctx is done.
	// It returns once delivery is set up.
	Subscribe(ctx context.Context, deliver func(Envelope)) error
}

// LocalBroadcaster delivers in-process only. It suits a single API instance.
type LocalBroadcaster struct {
	mu      sync.RWMutex
	deliver func(Envelope)
}

func NewLocalBroadcaster() *LocalBroadcaster {
	return &LocalBroadcaster{}
}

func (b *LocalBroadcaster) Publish(_ context.Context, env Envelope) error {
	b.mu.RLock()
	deliver := b.deliver
	b.mu.RUnlock()
	if deliver == nil {
		return fmt.Errorf("broadcaster not subscribed")
	}
	deliver(env)
	return nil
}

func (b *LocalBroadcaster) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	b.mu.Lock()
	b.deliver = deliver
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		b.mu.Lock()
		b.deliver = nil
		b.mu.Unlock()
	}()
	return nil
}

// RedisBroadcaster shares rooms between API processes over Redis pub/sub.
type RedisBroadcaster struct {
	rdb *redis.Client
}

func NewRedisBroadcaster(rdb *redis.Client) *RedisBroadcaster {
	return &RedisBroadcaster{rdb: rdb}
}

func (b *RedisBroadcaster) Publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, RoomChannelPrefix+env.Room, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to room %s: %w", env.Room, err)
	}
	return nil
}

func (b *RedisBroadcaster) Subscribe(ctx context.Context, deliver func(Envelope)) error {
	pubsub := b.rdb.PSubscribe(ctx, RoomChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to room channels: %w", err)
	}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					zap.L().Warn("dropping malformed room envelope", zap.String("channel", msg.Channel), zap.Error(err))
					continue
				}
				if env.Room == "" {
					env.Room = strings.TrimPrefix(msg.Channel, RoomChannelPrefix)
				}
				deliver(env)
			}
		}
	}()
	return nil
}
