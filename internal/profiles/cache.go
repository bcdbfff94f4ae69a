// Package profiles serves friend-facing profile fields with a small TTL cache
// in front of the user repository.
package profiles

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/minii/backend/internal/models"
)

// ErrProviderUnavailable indicates the profile provider is not configured.
var ErrProviderUnavailable = errors.New("profile provider unavailable")

// Provider resolves the profile fields exposed to friends.
type Provider interface {
	FindProfile(ctx context.Context, userID string) (models.FriendDetails, error)
}

type cacheEntry struct {
	details models.FriendDetails
	expires time.Time
}

// CachingProvider wraps another Provider with a TTL-based in-memory cache.
// Profile mutations call Invalidate so fresh details show up without waiting
// out the TTL.
type CachingProvider struct {
	base Provider
	ttl  time.Duration

	mu    sync.RWMutex
	items map[string]cacheEntry
}

// NewCachingProvider returns a Provider that caches lookups for the provided TTL.
func NewCachingProvider(base Provider, ttl time.Duration) *CachingProvider {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachingProvider{
		base:  base,
		ttl:   ttl,
		items: make(map[string]cacheEntry),
	}
}

// FindProfile returns cached details when available, otherwise it delegates
// to the underlying provider and stores the result.
func (c *CachingProvider) FindProfile(ctx context.Context, userID string) (models.FriendDetails, error) {
	if c == nil || c.base == nil {
		return models.FriendDetails{}, ErrProviderUnavailable
	}

	now := time.Now()

	c.mu.RLock()
	entry, ok := c.items[userID]
	c.mu.RUnlock()
	if ok && now.Before(entry.expires) {
		return entry.details, nil
	}

	details, err := c.base.FindProfile(ctx, userID)
	if err != nil {
		return models.FriendDetails{}, err
	}

	c.mu.Lock()
	c.items[userID] = cacheEntry{details: details, expires: now.Add(c.ttl)}
	c.mu.Unlock()

	return details, nil
}

// Invalidate drops the cached entry for the user, if any.
func (c *CachingProvider) Invalidate(userID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	delete(c.items, userID)
	c.mu.Unlock()
}
