package profile

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// CachedResolver keeps resolved avatar URLs for a short TTL so that
// leaderboard refreshes do not hit the thumbnails API on every read.
type CachedResolver struct {
	Resolver
	avatars *ttlcache.Cache[string, string]
}

// NewCachedResolver wraps inner. A non-positive ttl disables caching and
// returns inner unchanged. The returned func stops the expiry goroutine.
func NewCachedResolver(inner Resolver, ttl time.Duration) (Resolver, func()) {
	if ttl <= 0 {
		return inner, func() {}
	}
	avatars := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go avatars.Start()
	return &CachedResolver{Resolver: inner, avatars: avatars}, avatars.Stop
}

func (c *CachedResolver) ResolveAvatar(ctx context.Context, profileID string, maxAttempts int) (string, error) {
	if item := c.avatars.Get(profileID); item != nil {
		return item.Value(), nil
	}
	imageURL, err := c.Resolver.ResolveAvatar(ctx, profileID, maxAttempts)
	if err != nil {
		return "", err
	}
	c.avatars.Set(profileID, imageURL, ttlcache.DefaultTTL)
	return imageURL, nil
}

// ResolveAvatarsBatch only asks the inner resolver for ids not already cached.
func (c *CachedResolver) ResolveAvatarsBatch(ctx context.Context, profileIDs []string) map[string]string {
	result := make(map[string]string, len(profileIDs))
	var missing []string
	for _, id := range profileIDs {
		if item := c.avatars.Get(id); item != nil {
			result[id] = item.Value()
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return result
	}

	for id, imageURL := range c.Resolver.ResolveAvatarsBatch(ctx, missing) {
		c.avatars.Set(id, imageURL, ttlcache.DefaultTTL)
		result[id] = imageURL
	}
	return result
}
