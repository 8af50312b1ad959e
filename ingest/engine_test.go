package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-leaderboard/apperrors"
	"tournament-leaderboard/classify"
	"tournament-leaderboard/models"
	"tournament-leaderboard/profile/profiletest"
	"tournament-leaderboard/storage"
)

const defaultEvent = "rvnc-jan-24th"

// Saturday 2024-01-20 10:00 UTC.
var saturdayMorning = time.Date(2024, time.January, 20, 10, 0, 0, 0, time.UTC)

var saturdayBucket = models.Bucket{Day: "saturday", TournamentType: "all-day", Event: defaultEvent}

type recordingFiller struct {
	mu  sync.Mutex
	ids []string
}

func (f *recordingFiller) Enqueue(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
}

func newTestEngine(t *testing.T, policy Policy, opts ...Option) (*Engine, storage.Store) {
	t.Helper()
	store := storage.NewFileStore(&storage.MemoryBlob{}, defaultEvent)
	classifier := &classify.Classifier{Location: time.UTC, Now: func() time.Time { return saturdayMorning }}
	return NewEngine(store, classifier, policy, defaultEvent, opts...), store
}

func mustParse(t *testing.T, body string) Request {
	t.Helper()
	req, err := ParsePayload([]byte(body))
	require.NoError(t, err)
	return req
}

func addPlayer(t *testing.T, store storage.Store, username string, b models.Bucket) *models.Player {
	t.Helper()
	p := &models.Player{Username: username, ExternalUserID: "1", Day: b.Day, TournamentType: b.TournamentType, Event: b.Event}
	require.NoError(t, store.AddPlayer(context.Background(), p))
	return p
}

func TestIngestUpdatesExistingPlayerCaseInsensitively(t *testing.T) {
	engine, store := newTestEngine(t, PolicyPending)
	alice := addPlayer(t, store, "Alice", saturdayBucket)
	ctx := context.Background()

	summary, err := engine.Ingest(ctx, mustParse(t, `{"results": [{"username": "ALICE", "rank": 1}]}`))
	require.NoError(t, err)
	assert.Equal(t, Summary{Updated: 1, Day: "saturday", TournamentType: "all-day", Event: defaultEvent}, summary)

	got, err := store.GetPlayer(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Wins)
	assert.Equal(t, 100, got.Points)

	players, err := store.GetPlayers(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, players, 1)
	pending, err := store.GetPendingWinners(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngestPendingPolicyCreatesPendingWinners(t *testing.T) {
	engine, store := newTestEngine(t, PolicyPending)
	ctx := context.Background()

	summary, err := engine.Ingest(ctx, mustParse(t, `{"first": "bob", "second": "carol"}`))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pending)
	assert.Zero(t, summary.Updated)

	pending, err := store.GetPendingWinners(ctx, saturdayBucket)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "bob", pending[0].Username)
	assert.Equal(t, 1, pending[0].Wins)
	assert.Equal(t, 100, pending[0].Points)
	assert.Equal(t, "carol", pending[1].Username)
	assert.Equal(t, 0, pending[1].Wins)
	assert.Equal(t, 70, pending[1].Points)

	// A second result accrues on the same rows.
	_, err = engine.Ingest(ctx, mustParse(t, `{"first": "Carol"}`))
	require.NoError(t, err)
	carol, err := store.GetPendingWinner(ctx, "carol", saturdayBucket)
	require.NoError(t, err)
	assert.Equal(t, 1, carol.Wins)
	assert.Equal(t, 170, carol.Points)

	players, err := store.GetPlayers(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestIngestSkipPolicyReportsUnregistered(t *testing.T) {
	engine, store := newTestEngine(t, PolicySkip)
	addPlayer(t, store, "alice", saturdayBucket)
	ctx := context.Background()

	summary, err := engine.Ingest(ctx, mustParse(t, `{"first": "alice", "second": "bob"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"bob — not registered"}, summary.SkippedPlayers)

	pending, err := store.GetPendingWinners(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngestEagerPolicyCreatesPlayers(t *testing.T) {
	resolver := profiletest.NewFake()
	resolver.AddUser("bob", "123", "https://cdn/bob.png")
	filler := &recordingFiller{}
	engine, store := newTestEngine(t, PolicyEager, WithResolver(resolver, 2), WithAvatarFiller(filler))
	ctx := context.Background()

	summary, err := engine.Ingest(ctx, mustParse(t, `{"first": "BOB", "second": "carol"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 1, summary.Pending)

	bob, err := store.FindPlayer(ctx, "bob", saturdayBucket)
	require.NoError(t, err)
	assert.Equal(t, "123", bob.ExternalUserID)
	assert.Equal(t, "BOB", bob.Username)
	assert.Equal(t, "bob", bob.DisplayName)
	assert.Equal(t, 1, bob.Wins)
	assert.Equal(t, 100, bob.Points)
	assert.Empty(t, bob.AvatarURL)
	assert.Equal(t, []string{bob.ID}, filler.ids)

	carol, err := store.GetPendingWinner(ctx, "carol", saturdayBucket)
	require.NoError(t, err)
	assert.Equal(t, 70, carol.Points)

	// Registered names are not looked up again.
	calls := resolver.UserCallCount()
	summary, err = engine.Ingest(ctx, mustParse(t, `{"first": "bob"}`))
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, calls, resolver.UserCallCount())
}

func TestIngestMergesRepeatedNamesAndSkipsInvalid(t *testing.T) {
	engine, store := newTestEngine(t, PolicyPending)
	ctx := context.Background()

	summary, err := engine.Ingest(ctx, mustParse(t, `{"results": [
		{"username": "dave", "rank": 1},
		{"username": "Dave", "rank": 3},
		{"username": "", "rank": 2},
		{"username": "erin", "rank": 11}
	]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Pending)
	assert.Equal(t, 1, summary.Skipped)

	dave, err := store.GetPendingWinner(ctx, "dave", saturdayBucket)
	require.NoError(t, err)
	assert.Equal(t, 1, dave.Wins)
	assert.Equal(t, 150, dave.Points)

	erin, err := store.GetPendingWinner(ctx, "erin", saturdayBucket)
	require.NoError(t, err)
	assert.Equal(t, 0, erin.Points)
}

func TestIngestHonoursOverrides(t *testing.T) {
	engine, store := newTestEngine(t, PolicyPending)
	ctx := context.Background()

	summary, err := engine.Ingest(ctx, mustParse(t, `{"username": "bob", "day": "Sunday", "tournament_type": "special", "event": "Hobby Horizon"}`))
	require.NoError(t, err)
	assert.Equal(t, "sunday", summary.Day)
	assert.Equal(t, "special", summary.TournamentType)
	assert.Equal(t, "hobby-horizon", summary.Event)

	_, err = store.GetPendingWinner(ctx, "bob", models.Bucket{Day: "sunday", TournamentType: "special", Event: "hobby-horizon"})
	require.NoError(t, err)
}

func TestIngestRejectsUnknownTournamentType(t *testing.T) {
	engine, _ := newTestEngine(t, PolicyPending)

	_, err := engine.Ingest(context.Background(), mustParse(t, `{"username": "bob", "tournament_type": "finals"}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
}

func TestIngestRejectsEventWithoutID(t *testing.T) {
	engine, store := newTestEngine(t, PolicyPending)
	ctx := context.Background()
	hobby := models.Bucket{Day: "saturday", TournamentType: "all-day", Event: "hobby-horizon"}
	addPlayer(t, store, "alice", hobby)

	_, err := engine.Ingest(ctx, mustParse(t, `{"first": "alice", "event": "!!!"}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.CodeOf(err))
	assert.ErrorIs(t, err, models.ErrInvalidEvent)

	p, err := store.FindPlayer(ctx, "alice", hobby)
	require.NoError(t, err)
	assert.Zero(t, p.Wins)
	assert.Zero(t, p.Points)

	pending, err := store.GetPendingWinners(ctx, storage.Filter{})
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestIngestIsIdempotentPerDelivery(t *testing.T) {
	engine, store := newTestEngine(t, PolicyPending)
	alice := addPlayer(t, store, "alice", saturdayBucket)
	ctx := context.Background()

	req := mustParse(t, `{"first": "alice", "second": "bob", "delivery_id": "round-7"}`)
	first, err := engine.Ingest(ctx, req)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := engine.Ingest(ctx, req)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Updated, second.Updated)
	assert.Equal(t, first.Pending, second.Pending)

	got, err := store.GetPlayer(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.Points)
	bob, err := store.GetPendingWinner(ctx, "bob", saturdayBucket)
	require.NoError(t, err)
	assert.Equal(t, 70, bob.Points)
}

// failingStore fails every pending winner write inside a unit.
type failingStore struct {
	storage.Store
}

func (f failingStore) Atomically(ctx context.Context, fn func(storage.Store) error) error {
	return f.Store.Atomically(ctx, func(tx storage.Store) error {
		return fn(failingStore{tx})
	})
}

func (f failingStore) IncrementPendingWinner(context.Context, string, models.Bucket, int, int) error {
	return errors.New("disk full")
}

func TestIngestStorageFailureAppliesNothing(t *testing.T) {
	_, store := newTestEngine(t, PolicyPending)
	alice := addPlayer(t, store, "alice", saturdayBucket)
	classifier := &classify.Classifier{Location: time.UTC, Now: func() time.Time { return saturdayMorning }}
	engine := NewEngine(failingStore{store}, classifier, PolicyPending, defaultEvent)
	ctx := context.Background()

	_, err := engine.Ingest(ctx, mustParse(t, `{"first": "alice", "second": "bob", "delivery_id": "d-1"}`))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeDatabase, apperrors.CodeOf(err))

	got, err := store.GetPlayer(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, got.Points)
	_, err = store.GetDelivery(ctx, "d-1")
	require.ErrorIs(t, err, storage.ErrNotFound)
}
