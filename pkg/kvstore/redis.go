package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel carrying change notifications.
const DefaultChannel = "kv:changes"

// RedisBackend stores values in Redis and announces every write on a pub/sub
// channel so that all API instances observe it.
type RedisBackend struct {
	client  *redis.Client
	channel string
	prefix  string
	logger  *zap.Logger
}

// NewRedisBackend wraps client. An empty channel uses DefaultChannel.
func NewRedisBackend(client *redis.Client, channel string, logger *zap.Logger) *RedisBackend {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBackend{client: client, channel: channel, prefix: "kv:", logger: logger}
}

func (r *RedisBackend) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, true, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	return r.write(ctx, Change{Key: key, NewValue: strPtr(value)}, func(pipe redis.Pipeliner) {
		pipe.Set(ctx, r.prefix+key, value, 0)
	})
}

func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	return r.write(ctx, Change{Key: key}, func(pipe redis.Pipeliner) {
		pipe.Del(ctx, r.prefix+key)
	})
}

func (r *RedisBackend) write(ctx context.Context, change Change, op func(redis.Pipeliner)) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		op(pipe)
		pipe.Publish(ctx, r.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", change.Key, err)
	}
	return nil
}

func (r *RedisBackend) Subscribe(ctx context.Context) (<-chan Change, error) {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	out := make(chan Change, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close() //nolint:errcheck
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					r.logger.Warn("discarding malformed kv change", zap.String("channel", r.channel), zap.Error(err))
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
