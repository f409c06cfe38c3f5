package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed cache store for multi-server deployments.
// Entries are JSON-encoded and expire natively, so a crashed process
// never leaves entries that outlive their TTL.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// RedisStoreOption configures RedisStore behavior.
type RedisStoreOption func(*redisStoreConfig)

type redisStoreConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix. Default: "hydrant:page:".
func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(c *redisStoreConfig) {
		c.prefix = prefix
	}
}

// NewRedisStore creates a Redis-backed cache store.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("cache: redis client cannot be nil")
	}
	cfg := &redisStoreConfig{
		prefix: "hydrant:page:",
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return &RedisStore{
		client: client,
		prefix: cfg.prefix,
	}
}

// redisEntry is the persisted wire form of an entry.
type redisEntry struct {
	Data      []byte    `json:"data,omitempty"`
	HasData   bool      `json:"has_data"`
	Meta      Metadata  `json:"meta"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *RedisStore) key(key, namespace string) string {
	return r.prefix + namespace + ":" + key
}

// Get retrieves an entry. A missing key, an expired entry, and a backend
// failure all come back as a miss; only the last carries an error.
func (r *RedisStore) Get(ctx context.Context, key, namespace string) (Entry, error) {
	miss := Entry{Key: key, Namespace: namespace}

	raw, err := r.client.Get(ctx, r.key(key, namespace)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return miss, nil
		}
		return miss, fmt.Errorf("redis get: %w", err)
	}

	var stored redisEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return miss, fmt.Errorf("redis entry decode: %w", err)
	}
	if time.Now().After(stored.ExpiresAt) {
		return miss, nil
	}

	var data []byte
	if stored.HasData {
		data = stored.Data
		if data == nil {
			data = []byte{}
		}
	}
	return Entry{
		Found:     true,
		Key:       key,
		Namespace: namespace,
		Data:      data,
		Meta:      stored.Meta,
		ExpiresAt: stored.ExpiresAt,
	}, nil
}

// Put stores an entry with a native Redis TTL.
func (r *RedisStore) Put(ctx context.Context, key, namespace string, data []byte, meta Metadata, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	stored := redisEntry{
		Data:      data,
		HasData:   data != nil,
		Meta:      cloneMetadata(meta),
		ExpiresAt: expiresAt,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("redis entry encode: %w", err)
	}
	if err := r.client.Set(ctx, r.key(key, namespace), raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes an entry.
func (r *RedisStore) Delete(ctx context.Context, key, namespace string) error {
	if err := r.client.Del(ctx, r.key(key, namespace)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
