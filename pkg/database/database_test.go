package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"010_later.sql":    {Data: []byte("CREATE TABLE b (id INTEGER);")},
		"002_first.sql":    {Data: []byte("CREATE TABLE a (id INTEGER);")},
		"README.md":        {Data: []byte("ignored")},
		"nested/003_x.sql": {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 2, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, 10, migrations[1].Version)
	assert.Len(t, migrations[0].Checksum, 64)
}

func TestLoadMigrations_Errors(t *testing.T) {
	_, err := LoadMigrations(fstest.MapFS{"initial.sql": {Data: []byte("")}})
	assert.Error(t, err)

	_, err = LoadMigrations(fstest.MapFS{
		"001_a.sql":  {Data: []byte("")},
		"0001_b.sql": {Data: []byte("")},
	})
	assert.ErrorContains(t, err, "duplicate migration version 1")
}

func TestMigrator_UpIsIdempotentAndDetectsEdits(t *testing.T) {
	db, err := New(Config{Path: MemoryPath}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	fsys := fstest.MapFS{
		"001_items.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
	}

	m := NewMigrator(db, zap.NewNop())
	n, err := m.Up(ctx, fsys)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.Up(ctx, fsys)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, err = db.ExecContext(ctx, "INSERT INTO items (id) VALUES ('a')")
	require.NoError(t, err)

	fsys["001_items.sql"] = &fstest.MapFile{Data: []byte("CREATE TABLE items (id TEXT);")}
	_, err = m.Up(ctx, fsys)
	assert.ErrorContains(t, err, "changed after it was applied")
}

func TestMigrator_FailedMigrationIsNotRecorded(t *testing.T) {
	db, err := New(Config{Path: MemoryPath}, zap.NewNop())
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	_, err = NewMigrator(db, zap.NewNop()).Up(ctx, fstest.MapFS{
		"001_bad.sql": {Data: []byte("CREATE TABLE (;")},
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Zero(t, count)
}

func TestNew_RequiresPath(t *testing.T) {
	_, err := New(Config{}, zap.NewNop())
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	assert.Contains(t, dsn("data/a.db"), "_journal_mode=WAL")
	assert.NotContains(t, dsn(MemoryPath), "_journal_mode")
	assert.Contains(t, dsn(MemoryPath), "_foreign_keys=on")
}
