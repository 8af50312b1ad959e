package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"tournament-leaderboard/models"
)

// startPostgres runs a throwaway PostgreSQL and returns its DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("leaderboard"),
		postgres.WithUsername("leaderboard"),
		postgres.WithPassword("leaderboard"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	require.NoError(t, err)

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

var schemaSeq atomic.Int64

// newGormStore gives every test its own schema so they do not share rows.
func newGormStore(t *testing.T, dsn string) *GormStore {
	t.Helper()
	ctx := context.Background()

	admin, err := OpenPostgres(dsn, "rvnc-jan-24th")
	require.NoError(t, err)
	schema := fmt.Sprintf("t%d_%d", time.Now().UnixNano(), schemaSeq.Add(1))
	require.NoError(t, admin.db.Exec("CREATE SCHEMA "+schema).Error)
	require.NoError(t, admin.Close())

	s, err := OpenPostgres(dsn+"&search_path="+schema, "rvnc-jan-24th")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Migrate(ctx))
	return s
}

func TestGormStoreContract(t *testing.T) {
	dsn := startPostgres(t)
	runStoreContract(t, func(t *testing.T) Store {
		return newGormStore(t, dsn)
	})
}

func TestGormStoreMigratesLegacyTables(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	s := newGormStore(t, dsn)
	db := s.db.WithContext(ctx)
	require.NoError(t, db.Exec("DROP TABLE players").Error)
	require.NoError(t, db.Exec(`CREATE TABLE players (
		id text PRIMARY KEY,
		external_user_id text NOT NULL DEFAULT 'pending',
		username text NOT NULL,
		display_name text,
		wins bigint NOT NULL DEFAULT 0,
		points bigint NOT NULL DEFAULT 0,
		avatar_url text,
		created_at timestamptz
	)`).Error)
	require.NoError(t, db.Exec(`INSERT INTO players (id, username, display_name, wins, points, avatar_url, created_at)
		VALUES ('p1', 'Alice', 'Alice', 2, 170, '', now())`).Error)

	require.NoError(t, s.Migrate(ctx))

	p, err := s.FindPlayer(ctx, "alice", saturday)
	require.NoError(t, err)
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, 170, p.Points)
	assert.Equal(t, models.CurrentSchemaVersion, p.SchemaVersion)

	require.ErrorIs(t, s.AddPlayer(ctx, newPlayer("ALICE", saturday)), ErrAlreadyExists)
}
