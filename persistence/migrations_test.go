package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// The runner is engine-agnostic, so the contract is exercised against an
// in-memory SQLite database with a portable statement list. The default
// statement list itself is PostgreSQL DDL and runs in PostgresAdapter
// integration environments.

func openMigrationDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// A single conn keeps every statement on the same :memory: database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

var testStatements = []string{
	`CREATE TABLE IF NOT EXISTS checkpoint_migrations (v INTEGER PRIMARY KEY);`,
	`CREATE TABLE things (id TEXT PRIMARY KEY, payload TEXT);`,
	`CREATE INDEX things_payload_idx ON things (payload);`,
	`ALTER TABLE things ADD COLUMN extra TEXT;`,
}

func TestMigrationRunnerApply(t *testing.T) {
	ctx := context.Background()
	db := openMigrationDB(t)
	runner := NewMigrationRunnerWithStatements(db, testStatements, zap.NewNop())

	version, err := runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, -1, version)

	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testStatements), pending)

	require.NoError(t, runner.Apply(ctx))

	version, err = runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testStatements)-1, version)

	pending, err = runner.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	// The schema is actually in place.
	_, err = db.ExecContext(ctx, `INSERT INTO things (id, payload, extra) VALUES ('a', 'b', 'c')`)
	require.NoError(t, err)
}

func TestMigrationRunnerIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openMigrationDB(t)
	runner := NewMigrationRunnerWithStatements(db, testStatements, zap.NewNop())

	require.NoError(t, runner.Apply(ctx))
	// A second apply must not re-run non-guarded statements like the
	// CREATE INDEX, which would fail.
	require.NoError(t, runner.Apply(ctx))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoint_migrations`).Scan(&count))
	assert.Equal(t, len(testStatements), count)
}

func TestMigrationRunnerResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	db := openMigrationDB(t)

	broken := append(append([]string{}, testStatements[:2]...),
		`CREATE BROKEN SYNTAX`,
		testStatements[3],
	)
	runner := NewMigrationRunnerWithStatements(db, broken, zap.NewNop())

	err := runner.Apply(ctx)
	require.ErrorIs(t, err, ErrMigration)

	// The counter reflects the last success.
	version, err := runner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	// Fixing the statement resumes from the failure point without
	// re-running earlier statements.
	fixed := append(append([]string{}, testStatements[:2]...),
		testStatements[2],
		testStatements[3],
	)
	fixedRunner := NewMigrationRunnerWithStatements(db, fixed, zap.NewNop())
	require.NoError(t, fixedRunner.Apply(ctx))

	version, err = fixedRunner.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(fixed)-1, version)
}

func TestMigrationRunnerAppendOnlyGrowth(t *testing.T) {
	ctx := context.Background()
	db := openMigrationDB(t)

	runner := NewMigrationRunnerWithStatements(db, testStatements[:2], zap.NewNop())
	require.NoError(t, runner.Apply(ctx))

	// A later release ships more statements; only the new tail runs.
	grown := NewMigrationRunnerWithStatements(db, testStatements, zap.NewNop())
	pending, err := grown.Pending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, pending)

	require.NoError(t, grown.Apply(ctx))
	version, err := grown.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(testStatements)-1, version)
}

func TestDefaultMigrationSequenceShape(t *testing.T) {
	// Statement zero must bootstrap the version table; the sequence is
	// append-only, so existing positions are load-bearing.
	require.NotEmpty(t, migrationStatements)
	assert.Contains(t, migrationStatements[0], "checkpoint_migrations")
	for i, stmt := range migrationStatements {
		assert.NotEmpty(t, stmt, "statement %d", i)
	}
}
