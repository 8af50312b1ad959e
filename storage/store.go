// Package storage persists players, pending winners, the game status flag and
// the webhook delivery ledger behind a backend-agnostic Store.
package storage

import (
	"context"
	"errors"
	"time"

	"tournament-leaderboard/models"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidDelta  = errors.New("pending winner deltas must not be negative")
)

// Filter selects records by partition. Empty fields are unconstrained.
type Filter = models.Bucket

// PlayerUpdate is a partial update; nil fields are left unchanged.
type PlayerUpdate struct {
	ExternalUserID   *string
	Username         *string
	DisplayName      *string
	AvatarURL        *string
	Wins             *int
	Points           *int
	ProfileCheckedAt *time.Time
}

func (u PlayerUpdate) IsEmpty() bool {
	return u.ExternalUserID == nil && u.Username == nil && u.DisplayName == nil &&
		u.AvatarURL == nil && u.Wins == nil && u.Points == nil && u.ProfileCheckedAt == nil
}

type Store interface {
	// GetPlayers returns matching players oldest first.
	GetPlayers(ctx context.Context, f Filter) ([]models.Player, error)
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	// FindPlayer looks a player up by natural key; username is compared case-insensitively.
	FindPlayer(ctx context.Context, username string, b models.Bucket) (*models.Player, error)
	// AddPlayer assigns ID and CreatedAt when empty and normalizes p.
	// ErrAlreadyExists is returned when the natural key is taken.
	AddPlayer(ctx context.Context, p *models.Player) error
	UpdatePlayer(ctx context.Context, id string, u PlayerUpdate) error
	// IncrementPlayer adds the deltas in one storage command, clamping both
	// counters at zero, and returns the updated player.
	IncrementPlayer(ctx context.Context, id string, winsDelta, pointsDelta int) (*models.Player, error)
	DeletePlayer(ctx context.Context, id string) error
	// FindPlayerNeedingProfile returns the least recently checked player that
	// has no resolved profile or no avatar, or ErrNotFound.
	FindPlayerNeedingProfile(ctx context.Context) (*models.Player, error)

	// GetPendingWinners returns matching pending winners, most wins first.
	GetPendingWinners(ctx context.Context, f Filter) ([]models.PendingWinner, error)
	GetPendingWinner(ctx context.Context, username string, b models.Bucket) (*models.PendingWinner, error)
	// IncrementPendingWinner creates the pending row for the natural key or
	// adds the deltas to the existing one.
	IncrementPendingWinner(ctx context.Context, username string, b models.Bucket, winsDelta, pointsDelta int) error
	// RemovePendingWinner deletes every pending row for username inside f and
	// reports how many were removed.
	RemovePendingWinner(ctx context.Context, username string, f Filter) (int, error)

	// GetGameStatus returns STOP when the flag was never set.
	GetGameStatus(ctx context.Context) (models.GameStatus, error)
	SetGameStatus(ctx context.Context, status models.GameStatus) error

	GetDelivery(ctx context.Context, key string) (*models.WebhookDelivery, error)
	// RecordDelivery returns ErrAlreadyExists when the key was already recorded.
	RecordDelivery(ctx context.Context, d *models.WebhookDelivery) error

	// Atomically runs fn against a Store whose writes are committed together
	// when fn returns nil and discarded otherwise. Calls nest.
	Atomically(ctx context.Context, fn func(Store) error) error

	Close() error
}
