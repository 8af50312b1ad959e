package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-leaderboard/models"
)

var (
	saturday = models.Bucket{Day: "saturday", TournamentType: "all-day", Event: "rvnc-jan-24th"}
	sunday   = models.Bucket{Day: "sunday", TournamentType: "special", Event: "rvnc-jan-24th"}
)

func newPlayer(username string, b models.Bucket) *models.Player {
	return &models.Player{
		Username:       username,
		DisplayName:    username,
		ExternalUserID: models.PendingExternalID,
		Day:            b.Day,
		TournamentType: b.TournamentType,
		Event:          b.Event,
	}
}

// runStoreContract exercises behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("add and find players", func(t *testing.T) {
		s := newStore(t)
		alice := newPlayer("Alice", saturday)
		require.NoError(t, s.AddPlayer(ctx, alice))
		require.NotEmpty(t, alice.ID)
		require.False(t, alice.CreatedAt.IsZero())
		assert.Equal(t, models.CurrentSchemaVersion, alice.SchemaVersion)

		found, err := s.FindPlayer(ctx, "ALICE", saturday)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, found.ID)

		_, err = s.FindPlayer(ctx, "alice", sunday)
		require.ErrorIs(t, err, ErrNotFound)

		err = s.AddPlayer(ctx, newPlayer("alice", saturday))
		require.ErrorIs(t, err, ErrAlreadyExists)

		require.NoError(t, s.AddPlayer(ctx, newPlayer("alice", sunday)))
	})

	t.Run("filters players by partition", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddPlayer(ctx, newPlayer("a", saturday)))
		require.NoError(t, s.AddPlayer(ctx, newPlayer("b", saturday)))
		require.NoError(t, s.AddPlayer(ctx, newPlayer("c", sunday)))

		all, err := s.GetPlayers(ctx, Filter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		sat, err := s.GetPlayers(ctx, saturday)
		require.NoError(t, err)
		assert.Len(t, sat, 2)

		special, err := s.GetPlayers(ctx, Filter{TournamentType: "special"})
		require.NoError(t, err)
		require.Len(t, special, 1)
		assert.Equal(t, "c", special[0].Username)

		none, err := s.GetPlayers(ctx, Filter{Event: "hobby-horizon"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("increment clamps at zero", func(t *testing.T) {
		s := newStore(t)
		p := newPlayer("bob", saturday)
		p.Wins, p.Points = 2, 50
		require.NoError(t, s.AddPlayer(ctx, p))

		updated, err := s.IncrementPlayer(ctx, p.ID, 1, 100)
		require.NoError(t, err)
		assert.Equal(t, 3, updated.Wins)
		assert.Equal(t, 150, updated.Points)

		updated, err = s.IncrementPlayer(ctx, p.ID, -10, -1000)
		require.NoError(t, err)
		assert.Equal(t, 0, updated.Wins)
		assert.Equal(t, 0, updated.Points)

		_, err = s.IncrementPlayer(ctx, "missing", 1, 1)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("partial update", func(t *testing.T) {
		s := newStore(t)
		p := newPlayer("carol", saturday)
		require.NoError(t, s.AddPlayer(ctx, p))

		id, avatar := "123", "https://cdn/carol.png"
		require.NoError(t, s.UpdatePlayer(ctx, p.ID, PlayerUpdate{ExternalUserID: &id, AvatarURL: &avatar}))

		got, err := s.GetPlayer(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, "123", got.ExternalUserID)
		assert.Equal(t, avatar, got.AvatarURL)
		assert.Equal(t, "carol", got.DisplayName)

		require.ErrorIs(t, s.UpdatePlayer(ctx, "missing", PlayerUpdate{AvatarURL: &avatar}), ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		p := newPlayer("dave", saturday)
		require.NoError(t, s.AddPlayer(ctx, p))
		require.NoError(t, s.DeletePlayer(ctx, p.ID))
		require.ErrorIs(t, s.DeletePlayer(ctx, p.ID), ErrNotFound)
		_, err := s.GetPlayer(ctx, p.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("player needing profile rotates by last check", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindPlayerNeedingProfile(ctx)
		require.ErrorIs(t, err, ErrNotFound)

		done := newPlayer("done", saturday)
		done.ExternalUserID, done.AvatarURL = "1", "https://cdn/1.png"
		first := newPlayer("first", saturday)
		first.CreatedAt = time.Now().Add(-time.Hour)
		second := newPlayer("second", saturday)
		second.ExternalUserID = "2"
		for _, p := range []*models.Player{done, first, second} {
			require.NoError(t, s.AddPlayer(ctx, p))
		}

		got, err := s.FindPlayerNeedingProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		checked := time.Now()
		require.NoError(t, s.UpdatePlayer(ctx, first.ID, PlayerUpdate{ProfileCheckedAt: &checked}))

		got, err = s.FindPlayerNeedingProfile(ctx)
		require.NoError(t, err)
		assert.Equal(t, second.ID, got.ID)
	})

	t.Run("pending winners accrue case-insensitively", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.IncrementPendingWinner(ctx, "bob", saturday, 1, 100))
		require.NoError(t, s.IncrementPendingWinner(ctx, "BOB", saturday, 0, 70))
		require.NoError(t, s.IncrementPendingWinner(ctx, "carol", saturday, 0, 70))
		require.NoError(t, s.IncrementPendingWinner(ctx, "bob", sunday, 1, 100))

		require.ErrorIs(t, s.IncrementPendingWinner(ctx, "bob", saturday, -1, 0), ErrInvalidDelta)

		pending, err := s.GetPendingWinners(ctx, saturday)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, "bob", pending[0].Username)
		assert.Equal(t, 1, pending[0].Wins)
		assert.Equal(t, 170, pending[0].Points)
		assert.Equal(t, "carol", pending[1].Username)

		one, err := s.GetPendingWinner(ctx, "Bob", saturday)
		require.NoError(t, err)
		assert.Equal(t, 170, one.Points)

		n, err := s.RemovePendingWinner(ctx, "Bob", Filter{Day: "saturday"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = s.GetPendingWinner(ctx, "bob", saturday)
		require.ErrorIs(t, err, ErrNotFound)
		_, err = s.GetPendingWinner(ctx, "bob", sunday)
		require.NoError(t, err)
	})

	t.Run("game status defaults to stop", func(t *testing.T) {
		s := newStore(t)
		status, err := s.GetGameStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.GameStatusStop, status)

		require.NoError(t, s.SetGameStatus(ctx, models.GameStatusStart))
		status, err = s.GetGameStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.GameStatusStart, status)

		require.NoError(t, s.SetGameStatus(ctx, models.GameStatusStop))
		status, err = s.GetGameStatus(ctx)
		require.NoError(t, err)
		assert.Equal(t, models.GameStatusStop, status)
	})

	t.Run("delivery ledger", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetDelivery(ctx, "d-1")
		require.ErrorIs(t, err, ErrNotFound)

		require.NoError(t, s.RecordDelivery(ctx, &models.WebhookDelivery{Key: "d-1", Summary: `{"updated":1}`}))
		got, err := s.GetDelivery(ctx, "d-1")
		require.NoError(t, err)
		assert.Equal(t, `{"updated":1}`, got.Summary)

		err = s.RecordDelivery(ctx, &models.WebhookDelivery{Key: "d-1", Summary: `{}`})
		require.ErrorIs(t, err, ErrAlreadyExists)
	})

	t.Run("atomically rolls back on error", func(t *testing.T) {
		s := newStore(t)
		boom := errors.New("boom")

		err := s.Atomically(ctx, func(tx Store) error {
			require.NoError(t, tx.AddPlayer(ctx, newPlayer("eve", saturday)))
			require.NoError(t, tx.IncrementPendingWinner(ctx, "frank", saturday, 1, 100))
			return boom
		})
		require.ErrorIs(t, err, boom)

		players, err := s.GetPlayers(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, players)
		pending, err := s.GetPendingWinners(ctx, Filter{})
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("nested atomically keeps outer work", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.AddPlayer(ctx, newPlayer("grace", saturday)))

		err := s.Atomically(ctx, func(tx Store) error {
			require.NoError(t, tx.AddPlayer(ctx, newPlayer("heidi", saturday)))

			inner := tx.Atomically(ctx, func(inner Store) error {
				return inner.AddPlayer(ctx, newPlayer("GRACE", saturday))
			})
			require.ErrorIs(t, inner, ErrAlreadyExists)

			return tx.IncrementPendingWinner(ctx, "grace", saturday, 1, 100)
		})
		require.NoError(t, err)

		players, err := s.GetPlayers(ctx, saturday)
		require.NoError(t, err)
		assert.Len(t, players, 2)
		pending, err := s.GetPendingWinners(ctx, saturday)
		require.NoError(t, err)
		assert.Len(t, pending, 1)
	})
}
