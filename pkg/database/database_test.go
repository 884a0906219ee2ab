package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forest/pkg/logging"
	"forest/pkg/metrics"
)

func openMemory(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), DefaultConfig(MemoryLocation), logging.NewNopLogger(), metrics.NewCollectorForTesting())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestDialectFor(t *testing.T) {
	assert.Equal(t, SQLite, DialectFor(":memory:"))
	assert.Equal(t, SQLite, DialectFor("/data/forest.db"))
	assert.Equal(t, Postgres, DialectFor("postgres://user:pw@localhost/forest"))
	assert.Equal(t, Postgres, DialectFor("postgresql://localhost/forest"))
}

func TestOpen_RequiresLocation(t *testing.T) {
	_, err := Open(context.Background(), &Config{}, logging.NewNopLogger(), metrics.NewCollectorForTesting())
	require.Error(t, err)
}

func TestOpen_MemoryStoreSurvivesAcrossCalls(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)
	assert.Equal(t, SQLite, db.Dialect())

	_, err := db.ExecContext(ctx, "create", "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "insert", "INSERT INTO t (v) VALUES (?)", 7)
	require.NoError(t, err)

	var v int
	require.NoError(t, db.GetContext(ctx, "get", &v, "SELECT v FROM t"))
	assert.Equal(t, 7, v)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	db := openMemory(t)

	_, err := db.ExecContext(ctx, "create", "CREATE TABLE t (v INTEGER)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = db.WithTx(ctx, func(q Queryer) error {
		if _, err := q.ExecContext(ctx, "insert", "INSERT INTO t (v) VALUES (?)", 1); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.GetContext(ctx, "count", &count, "SELECT COUNT(*) FROM t"))
	assert.Equal(t, 0, count)

	err = db.WithTx(ctx, func(q Queryer) error {
		_, err := q.ExecContext(ctx, "insert", "INSERT INTO t (v) VALUES (?)", 2)
		return err
	})
	require.NoError(t, err)

	var values []int
	require.NoError(t, db.SelectContext(ctx, "select", &values, "SELECT v FROM t"))
	assert.Equal(t, []int{2}, values)
}

func TestWithDB_ClosesOnError(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "forest.db")

	var captured *DB
	boom := errors.New("boom")
	err := WithDB(ctx, DefaultConfig(path), logging.NewNopLogger(), metrics.NewCollectorForTesting(), func(db *DB) error {
		captured = db
		_, err := db.ExecContext(ctx, "create", "CREATE TABLE t (v INTEGER)")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NotNil(t, captured)
	assert.Error(t, captured.DB().PingContext(ctx), "connection should be closed")

	// The file store persisted the table.
	err = WithDB(ctx, DefaultConfig(path), logging.NewNopLogger(), metrics.NewCollectorForTesting(), func(db *DB) error {
		var n int
		return db.GetContext(ctx, "count", &n, "SELECT COUNT(*) FROM t")
	})
	require.NoError(t, err)
}

func TestHealthCheck(t *testing.T) {
	db := openMemory(t)
	require.NoError(t, db.HealthCheck(context.Background()))
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "postgres://***@db:5432/forest", redact("postgres://u:secret@db:5432/forest"))
	assert.Equal(t, "forest.db", redact("forest.db"))
	assert.Equal(t, ":memory:", redact(":memory:"))
}
