package storage

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-leaderboard/models"
)

func TestFileStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store {
		return NewFileStore(&MemoryBlob{}, "rvnc-jan-24th")
	})
}

func TestFileStoreMigratesLegacyDocument(t *testing.T) {
	blob := &MemoryBlob{}
	legacy := `{
		"players": [
			{"id": "p1", "external_user_id": "42", "username": "Alice", "wins": 3, "points": 300},
			{"id": "p2", "username": "Bob", "day": "Sunday", "tournament_type": "special", "event": "hobby-horizon"}
		],
		"pending_winners": [{"id": "w1", "username": "Carol", "wins": 1, "points": 100}],
		"game_status": "PAUSED"
	}`
	require.NoError(t, blob.Write(context.Background(), []byte(legacy)))

	s := NewFileStore(blob, "rvnc-jan-24th")
	ctx := context.Background()

	alice, err := s.FindPlayer(ctx, "alice", saturday)
	require.NoError(t, err)
	assert.Equal(t, "p1", alice.ID)
	assert.Equal(t, 300, alice.Points)

	bob, err := s.GetPlayer(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, models.Bucket{Day: "sunday", TournamentType: "special", Event: "hobby-horizon"}, bob.Bucket())
	assert.Equal(t, models.PendingExternalID, bob.ExternalUserID)

	carol, err := s.GetPendingWinner(ctx, "carol", saturday)
	require.NoError(t, err)
	assert.Equal(t, 100, carol.Points)

	status, err := s.GetGameStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.GameStatusStop, status)

	// The first write persists the migrated form.
	require.NoError(t, s.SetGameStatus(ctx, models.GameStatusStart))
	raw, err := blob.Read(ctx)
	require.NoError(t, err)
	var doc document
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, models.CurrentSchemaVersion, doc.SchemaVersion)
	assert.Equal(t, "saturday", doc.Players[0].Day)
	assert.Equal(t, models.CurrentSchemaVersion, doc.Players[0].SchemaVersion)
}

func TestFileStoreRejectsCorruptDocument(t *testing.T) {
	blob := &MemoryBlob{}
	require.NoError(t, blob.Write(context.Background(), []byte("{not json")))

	_, err := NewFileStore(blob, "rvnc-jan-24th").GetPlayers(context.Background(), Filter{})
	require.Error(t, err)
}

func TestFileStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data.json")
	ctx := context.Background()

	s := NewFileStore(&DiskBlob{Path: path}, "rvnc-jan-24th")
	require.NoError(t, s.AddPlayer(ctx, newPlayer("alice", saturday)))

	reopened := NewFileStore(&DiskBlob{Path: path}, "rvnc-jan-24th")
	players, err := reopened.GetPlayers(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, players, 1)
	assert.Equal(t, "alice", players[0].Username)
}
