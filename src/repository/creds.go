package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	app "github.com/newnonsick/Nutritional-Information-BE/src/app"
	cfg "github.com/newnonsick/Nutritional-Information-BE/src/configuration"
)

type (
	// TokenCache remembers identities resolved from access tokens so that
	// repeated requests skip the identity provider round trip.
	TokenCache interface {
		Get(ctx context.Context, accessToken string) (*app.User, bool, error)
		Put(ctx context.Context, accessToken string, user *app.User, ttl time.Duration) error
		Delete(ctx context.Context, accessToken string) error
		Close() error
	}

	InMemoryCache struct {
		mu    sync.RWMutex
		table map[string]cacheEntry
		now   func() time.Time
	}

	cacheEntry struct {
		user    app.User
		expires time.Time
	}
)

// NewTokenCache builds the cache selected by CACHE_TYPE.
func NewTokenCache(ctx context.Context, config *cfg.Properties) (TokenCache, error) {
	if config == nil {
		return nil, fmt.Errorf("config is not valid")
	}
	switch config.Cache.Type {
	case "memory":
		return NewInMemoryCache(), nil
	case "redis":
		return NewRedisCache(ctx, config.Cache)
	default:
		return nil, fmt.Errorf("unknown cache type %q", config.Cache.Type)
	}
}

// tokenKey never stores the raw token.
func tokenKey(accessToken string) string {
	sum := sha256.Sum256([]byte(accessToken))
	return hex.EncodeToString(sum[:])
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{table: make(map[string]cacheEntry), now: time.Now}
}

func (i *InMemoryCache) Get(_ context.Context, accessToken string) (*app.User, bool, error) {
	key := tokenKey(accessToken)
	i.mu.RLock()
	entry, ok := i.table[key]
	i.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !i.now().Before(entry.expires) {
		i.mu.Lock()
		delete(i.table, key)
		i.mu.Unlock()
		return nil, false, nil
	}
	user := entry.user
	return &user, true, nil
}

func (i *InMemoryCache) Put(_ context.Context, accessToken string, user *app.User, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.table[tokenKey(accessToken)] = cacheEntry{user: *user, expires: i.now().Add(ttl)}
	i.evictExpiredLocked()
	return nil
}

func (i *InMemoryCache) Delete(_ context.Context, accessToken string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.table, tokenKey(accessToken))
	return nil
}

func (i *InMemoryCache) Close() error {
	return nil
}

func (i *InMemoryCache) evictExpiredLocked() {
	now := i.now()
	for key, entry := range i.table {
		if !now.Before(entry.expires) {
			delete(i.table, key)
		}
	}
}
