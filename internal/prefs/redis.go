package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultHashKey = "blockstats:prefs"
	changedSuffix  = ":changed"
)

type changeMessage struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// RedisBackend stores preferences in one Redis hash and announces writes on a
// pub/sub channel so other processes sharing the hash can follow along.
type RedisBackend struct {
	client *redis.Client
	key    string
}

// NewRedisBackend connects to redisURL and checks the connection.
func NewRedisBackend(redisURL string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisBackendWithClient(client), nil
}

// NewRedisBackendWithClient wraps an existing client.
func NewRedisBackendWithClient(client *redis.Client) *RedisBackend {
	return &RedisBackend{client: client, key: defaultHashKey}
}

func (r *RedisBackend) channel() string {
	return r.key + changedSuffix
}

func (r *RedisBackend) Load(ctx context.Context) (map[string]string, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("load prefs hash: %w", err)
	}
	return values, nil
}

func (r *RedisBackend) Set(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(changeMessage{Key: key, Value: value})
	if err != nil {
		return fmt.Errorf("marshal pref change: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.key, key, value)
		pipe.Publish(ctx, r.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save pref %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.HIncrBy(ctx, r.key, key, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("increment pref %s: %w", key, err)
	}
	return n, nil
}

// Watch applies changes published by other processes to store until ctx is
// done. Counter increments are not published; only Set writes are.
func (r *RedisBackend) Watch(ctx context.Context, store *Store) error {
	sub := r.client.Subscribe(ctx, r.channel())
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel(), err)
	}
	slog.Info("prefs watching redis", "channel", r.channel())

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var change changeMessage
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				slog.Debug("prefs change message ignored", "payload", msg.Payload, "error", err)
				continue
			}
			store.Apply(change.Key, change.Value)
		}
	}
}

// Close closes the Redis connection.
func (r *RedisBackend) Close() error {
	return r.client.Close()
}

// Ping checks if Redis is reachable.
func (r *RedisBackend) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
