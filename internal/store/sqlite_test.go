package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/claimgraph/internal/store"
	"github.com/randalmurphal/claimgraph/pkg/claimgraph/checkpoint"
)

func TestSQLite_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "claims.db")

	s1, err := store.NewSQLite(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s1.SaveRecord(ctx, record("c1", "Condition", `{"id":"c1"}`)))
	require.NoError(t, s1.SaveAnalysis(ctx, sampleAnalysis("run-1")))
	require.NoError(t, s1.Close())

	s2, err := store.NewSQLite(ctx, path)
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.Records(ctx, []string{"c1"})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	latest, err := s2.LatestAnalysis(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
}

func TestSQLite_Migrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "claims.db")

	raw, err := store.OpenSQLiteNoMigrate(ctx, path)
	require.NoError(t, err)
	defer raw.Close()

	v, dirty, err := raw.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(0), v)
	assert.False(t, dirty)

	require.NoError(t, raw.MigrateUp())
	v, _, err = raw.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)

	require.NoError(t, raw.MigrateUp(), "up is idempotent")

	require.NoError(t, raw.MigrateDown())
	v, _, err = raw.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	_, err = raw.LatestAnalysis(ctx)
	assert.Error(t, err, "analysis table was dropped")

	require.NoError(t, raw.MigrateUp())
	_, err = raw.LatestAnalysis(ctx)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSQLite_InvalidPath(t *testing.T) {
	_, err := store.NewSQLite(context.Background(), "/nonexistent/dir/claims.db")
	assert.Error(t, err)
}

func TestSQLite_MigrateAfterClose(t *testing.T) {
	s, err := store.NewSQLite(context.Background(), filepath.Join(t.TempDir(), "c.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.MigrateUp(), store.ErrClosed)
}

func TestSQLite_SharesFileWithCheckpoints(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "shared.db")

	s, err := store.NewSQLite(context.Background(), dbPath)
	require.NoError(t, err)
	defer s.Close()

	cps, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer cps.Close()
	require.NoError(t, cps.Save("run-1", 1, []byte("{}")))

	v, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), v, "checkpoint migrations are tracked separately")
	assert.False(t, dirty)
}
