package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/models"
)

func TestSortStandingsBreaksTiesByWins(t *testing.T) {
	players := []models.Player{
		{Username: "c", Points: 30, Wins: 5},
		{Username: "b", Points: 50, Wins: 1},
		{Username: "a", Points: 50, Wins: 2},
	}
	SortStandings(players)

	got := make([]string, len(players))
	for i, p := range players {
		got[i] = p.Username
	}
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestListPlayersDefaultsToCurrentPartition(t *testing.T) {
	f := newFixture(t)
	f.addPlayer(t, "low", "1", 5, 30)
	f.addPlayer(t, "tied-one", "2", 1, 50)
	f.addPlayer(t, "tied-two", "pending", 2, 50)

	sunday := &models.Player{Username: "elsewhere", Day: "sunday", TournamentType: "all-day", Event: testEvent, Points: 500}
	require.NoError(t, f.store.AddPlayer(context.Background(), sunday))

	players, bucket, err := f.standings.ListPlayers(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, saturdayBucket, bucket)
	require.Len(t, players, 3)
	assert.Equal(t, []int{50, 50, 30}, []int{players[0].Points, players[1].Points, players[2].Points})
	assert.Equal(t, []int{2, 1, 5}, []int{players[0].Wins, players[1].Wins, players[2].Wins})

	sundayPlayers, _, err := f.standings.ListPlayers(context.Background(), Filter{Day: "Sunday"})
	require.NoError(t, err)
	require.Len(t, sundayPlayers, 1)
	assert.Equal(t, "elsewhere", sundayPlayers[0].Username)
}

func TestListPlayersMergesFreshAvatars(t *testing.T) {
	f := newFixture(t)
	fresh := f.addPlayer(t, "fresh", "1", 0, 20)
	stale := f.addPlayer(t, "stale", "2", 0, 10)
	require.NoError(t, f.store.UpdatePlayer(context.Background(), stale.ID, storageAvatar("https://cdn/stored.png")))
	f.addPlayer(t, "pending", "pending", 0, 0)
	f.profiles.Avatars["1"] = "https://cdn/new.png"

	players, _, err := f.standings.ListPlayers(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, players, 3)
	assert.Equal(t, fresh.ID, players[0].ID)
	assert.Equal(t, "https://cdn/new.png", players[0].AvatarURL)
	assert.Equal(t, "https://cdn/stored.png", players[1].AvatarURL)

	require.Len(t, f.profiles.BatchCalls, 1)
	assert.ElementsMatch(t, []string{"1", "2"}, f.profiles.BatchCalls[0])
}

func TestListPlayersRejectsUnknownTournamentType(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.standings.ListPlayers(context.Background(), Filter{TournamentType: "finals"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestListPlayersRejectsEventWithoutID(t *testing.T) {
	f := newFixture(t)
	f.addPlayer(t, "alice", "1", 1, 100)

	for _, event := range []string{"!!!", "---"} {
		players, _, err := f.standings.ListPlayers(context.Background(), Filter{Event: event})
		require.Error(t, err, event)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err), event)
		assert.Nil(t, players, event)
	}
}

func TestListPendingWinnersSortedByWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.IncrementPendingWinner(ctx, "one", saturdayBucket, 1, 100))
	require.NoError(t, f.store.IncrementPendingWinner(ctx, "three", saturdayBucket, 3, 300))
	require.NoError(t, f.store.IncrementPendingWinner(ctx, "two", saturdayBucket, 2, 200))

	pending, err := f.standings.ListPendingWinners(ctx, Filter{Event: "RVNC Jan 24th"})
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, "three", pending[0].Username)
	assert.Equal(t, "two", pending[1].Username)
	assert.Equal(t, "one", pending[2].Username)
}
