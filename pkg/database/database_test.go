package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_init.up.sql",
		"000001_init.down.sql",
		"000003_tokens.up.sql",
		"000002_blocks.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}

	v, err := LatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	_, err = LatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: 5432, User: "u", Password: "p", Name: "productsync"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=productsync sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestInsertBuilder_OnConflict(t *testing.T) {
	ib := NewInsertBuilder()
	ib.InsertInto("catalog_blocks")
	ib.Cols("block_key", "revision")
	ib.Values("acme", 1)
	ib.OnConflictUpdate([]string{"block_key"}, "revision")

	query, args := ib.Build()
	assert.Equal(t, "INSERT INTO catalog_blocks (block_key, revision) VALUES ($1, $2) ON CONFLICT (block_key) DO UPDATE SET revision = EXCLUDED.revision", query)
	assert.Equal(t, []any{"acme", 1}, args)

	ib = NewInsertBuilder()
	ib.InsertInto("entity_tokens")
	ib.Cols("token", "entity_id")
	ib.Values("widget", "e-1")
	ib.OnConflictDoNothing()
	query, _ = ib.Build()
	assert.Equal(t, "INSERT INTO entity_tokens (token, entity_id) VALUES ($1, $2) ON CONFLICT DO NOTHING", query)
}

func TestBuildf(t *testing.T) {
	query, args := Buildf("SELECT id FROM catalog_entities WHERE block_key = %v LIMIT %v", "acme", 10)
	assert.Equal(t, "SELECT id FROM catalog_entities WHERE block_key = $1 LIMIT $2", query)
	assert.Equal(t, []any{"acme", 10}, args)
}

func TestErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	serialization := &pq.Error{Code: "40001"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(serialization))
	assert.True(t, IsRetryable(serialization))
	assert.True(t, IsRetryable(&pq.Error{Code: "40P01"}))
	assert.False(t, IsRetryable(errors.New("boom")))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", sql.ErrNoRows)))
}
