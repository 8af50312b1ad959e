package profile

import "context"

// Resolver is what the rest of the service needs from the profile API.
type Resolver interface {
	ResolveUser(ctx context.Context, name string, maxAttempts int) (*Profile, error)
	ResolveAvatar(ctx context.Context, profileID string, maxAttempts int) (string, error)
	ResolveAvatarsBatch(ctx context.Context, profileIDs []string) map[string]string
}

var _ Resolver = (*Client)(nil)
