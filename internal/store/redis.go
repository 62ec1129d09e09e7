package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// redisValueField holds the serialized value inside each key's hash
	redisValueField = "value"
	// redisMetaPrefix prefixes hash fields that carry metadata tags
	redisMetaPrefix = "meta:"

	redisScanCount = 200
)

// RedisKV stores each key as a hash holding the value and its metadata tags,
// so a listing can read tags without fetching value bodies.
type RedisKV struct {
	client *redis.Client
}

// NewRedisKV connects to Redis at redisURL and verifies the connection
func NewRedisKV(redisURL string) (*RedisKV, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisKV{client: client}, nil
}

// NewRedisKVFromClient wraps an existing client
func NewRedisKVFromClient(client *redis.Client) *RedisKV {
	return &RedisKV{client: client}
}

var _ KV = (*RedisKV)(nil)

// Client exposes the underlying client, e.g. for the rate limiter store
func (r *RedisKV) Client() *redis.Client {
	return r.client
}

// Close closes the Redis connection
func (r *RedisKV) Close() error {
	return r.client.Close()
}

// Ping implements KV
func (r *RedisKV) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Put implements KV. The hash is rebuilt inside MULTI so stale tags and any
// previous expiry never survive a rewrite.
func (r *RedisKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration, meta map[string]string) error {
	fields := make(map[string]any, len(meta)+1)
	fields[redisValueField] = value
	for k, v := range meta {
		fields[redisMetaPrefix+k] = v
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}
	return nil
}

// Get implements KV
func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.client.HGet(ctx, key, redisValueField).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

// List implements KV
func (r *RedisKV) List(ctx context.Context, prefix string) ([]KeyInfo, error) {
	var names []string
	iter := r.client.Scan(ctx, 0, escapeGlob(prefix)+"*", redisScanCount).Iterator()
	for iter.Next(ctx) {
		names = append(names, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s*: %w", prefix, err)
	}
	if len(names) == 0 {
		return nil, nil
	}

	// Only tag fields are fetched; value bodies stay on the server.
	cmds := make([]*redis.MapStringStringCmd, len(names))
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, name := range names {
			cmds[i] = pipe.HGetAll(ctx, name)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read tags for %s*: %w", prefix, err)
	}

	keys := make([]KeyInfo, 0, len(names))
	for i, name := range names {
		fields, err := cmds[i].Result()
		if err != nil || len(fields) == 0 {
			// expired or deleted between SCAN and HGETALL
			continue
		}
		keys = append(keys, KeyInfo{Name: name, Meta: metaFromFields(fields)})
	}
	return keys, nil
}

func metaFromFields(fields map[string]string) map[string]string {
	var meta map[string]string
	for field, v := range fields {
		name, ok := strings.CutPrefix(field, redisMetaPrefix)
		if !ok {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta[name] = v
	}
	return meta
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
