package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"stele-slicer/internal/labeler"
)

// Redis is a label cache shared between machines.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis connects to url (redis://host:port/db) and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Redis{client: client, prefix: "slicer:label:", ttl: ttl}, nil
}

// Close closes the connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get implements labeler.Cache.
func (r *Redis) Get(ctx context.Context, key string) (*labeler.Result, bool, error) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var res labeler.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false, fmt.Errorf("corrupt cached label %s: %w", key, err)
	}
	return &res, true, nil
}

// Put implements labeler.Cache.
func (r *Redis) Put(ctx context.Context, key string, res *labeler.Result) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(key), data, r.ttl).Err()
}

// Tiered reads through a fast local cache to a shared one and fills the
// local cache on shared hits.
type Tiered struct {
	Local  labeler.Cache
	Shared labeler.Cache
}

// Get implements labeler.Cache.
func (t Tiered) Get(ctx context.Context, key string) (*labeler.Result, bool, error) {
	if r, ok, err := t.Local.Get(ctx, key); err == nil && ok {
		return r, true, nil
	}
	r, ok, err := t.Shared.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	_ = t.Local.Put(ctx, key, r)
	return r, true, nil
}

// Put implements labeler.Cache.
func (t Tiered) Put(ctx context.Context, key string, r *labeler.Result) error {
	if err := t.Local.Put(ctx, key, r); err != nil {
		return err
	}
	return t.Shared.Put(ctx, key, r)
}
