package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

type (
	RedisCache struct {
		client *redis.Client
		prefix string
	}

	cachedUser struct {
		User      app.User  `json:"user"`
		ExpiresAt time.Time `json:"expires_at"`
	}
)

// NewRedisCache connects and pings the configured redis server.
func NewRedisCache(ctx context.Context, props cfg.CacheProperties) (*RedisCache, error) {
	if props.Addr == "" {
		return nil, fmt.Errorf("redis address required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     props.Addr,
		Password: props.Password,
		DB:       props.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	prefix := props.KeyPrefix
	if prefix == "" {
		prefix = "nf:token:"
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (r *RedisCache) key(accessToken string) string {
	return r.prefix + tokenKey(accessToken)
}

func (r *RedisCache) Get(ctx context.Context, accessToken string) (*app.User, bool, error) {
	raw, err := r.client.Get(ctx, r.key(accessToken)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get failed: %w", err)
	}
	var cached cachedUser
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false, fmt.Errorf("corrupt cache entry: %w", err)
	}
	cached.User.ExpiresAt = cached.ExpiresAt
	return &cached.User, true, nil
}

func (r *RedisCache) Put(ctx context.Context, accessToken string, user *app.User, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(cachedUser{User: *user, ExpiresAt: user.ExpiresAt})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(accessToken), data, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, accessToken string) error {
	return r.client.Del(ctx, r.key(accessToken)).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
