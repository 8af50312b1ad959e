// Package profiletest provides an in-memory profile.Resolver for tests.
package profiletest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"tournament-leaderboard/profile"
)

// Fake resolves names from Profiles (keyed by lowercased name) and avatars
// from Avatars (keyed by profile id). Errors force a failure for a name or id.
type Fake struct {
	mu sync.Mutex

	Profiles    map[string]profile.Profile
	Avatars     map[string]string
	UserErrors  map[string]error
	AvatarError error

	UserCalls   []string
	AvatarCalls []string
	BatchCalls  [][]string
}

var _ profile.Resolver = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		Profiles:   map[string]profile.Profile{},
		Avatars:    map[string]string{},
		UserErrors: map[string]error{},
	}
}

// AddUser registers name with id and, when avatarURL is set, its avatar.
func (f *Fake) AddUser(name, id, avatarURL string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Profiles[strings.ToLower(name)] = profile.Profile{ID: id, Name: name, DisplayName: name}
	if avatarURL != "" {
		f.Avatars[id] = avatarURL
	}
}

func (f *Fake) ResolveUser(_ context.Context, name string, _ int) (*profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UserCalls = append(f.UserCalls, name)

	key := strings.ToLower(strings.TrimSpace(name))
	if err, ok := f.UserErrors[key]; ok {
		return nil, err
	}
	p, ok := f.Profiles[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", profile.ErrProfileNotFound, name)
	}
	return &p, nil
}

func (f *Fake) ResolveAvatar(_ context.Context, profileID string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AvatarCalls = append(f.AvatarCalls, profileID)

	if f.AvatarError != nil {
		return "", f.AvatarError
	}
	u, ok := f.Avatars[profileID]
	if !ok {
		return "", fmt.Errorf("%w: %s", profile.ErrAvatarNotFound, profileID)
	}
	return u, nil
}

func (f *Fake) ResolveAvatarsBatch(_ context.Context, profileIDs []string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BatchCalls = append(f.BatchCalls, append([]string(nil), profileIDs...))

	out := map[string]string{}
	if f.AvatarError != nil {
		return out
	}
	for _, id := range profileIDs {
		if u, ok := f.Avatars[id]; ok {
			out[id] = u
		}
	}
	return out
}

func (f *Fake) UserCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.UserCalls)
}
