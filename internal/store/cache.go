package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/monitor-judicial/whatsapp-agent/internal/domain"
)

// DefaultProfileTTL bounds how stale a cached profile may be.
const DefaultProfileTTL = 5 * time.Minute

// CachedProfiles decorates a Repository with an in-memory profile cache.
// Every webhook resolves its sender by phone and every turn loads the
// profile, while profiles change rarely. Only misses reach the database,
// and only found profiles are cached.
type CachedProfiles struct {
	Repository
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewCachedProfiles wraps repo. A non-positive ttl uses DefaultProfileTTL.
func NewCachedProfiles(repo Repository, ttl time.Duration) (*CachedProfiles, error) {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create profile cache: %w", err)
	}
	return &CachedProfiles{Repository: repo, cache: cache, ttl: ttl}, nil
}

// GetUserProfile implements Repository.
func (c *CachedProfiles) GetUserProfile(ctx context.Context, userID string) (*domain.UserProfile, error) {
	return c.load("id:"+userID, func() (*domain.UserProfile, error) {
		return c.Repository.GetUserProfile(ctx, userID)
	})
}

// GetUserProfileByPhone implements Repository.
func (c *CachedProfiles) GetUserProfileByPhone(ctx context.Context, phone string) (*domain.UserProfile, error) {
	return c.load("phone:"+domain.PhoneKey(phone), func() (*domain.UserProfile, error) {
		return c.Repository.GetUserProfileByPhone(ctx, phone)
	})
}

func (c *CachedProfiles) load(key string, fetch func() (*domain.UserProfile, error)) (*domain.UserProfile, error) {
	if v, ok := c.cache.Get(key); ok {
		if p, ok := v.(*domain.UserProfile); ok {
			cp := *p
			return &cp, nil
		}
	}
	p, err := fetch()
	if err != nil || p == nil {
		return p, err
	}
	cp := *p
	c.cache.SetWithTTL(key, &cp, 1, c.ttl)
	return p, nil
}

// Invalidate drops every cached profile.
func (c *CachedProfiles) Invalidate() {
	c.cache.Clear()
}

// Close releases the cache and closes the wrapped repository.
func (c *CachedProfiles) Close() error {
	c.cache.Close()
	return c.Repository.Close()
}
