package testhelpers

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/require"

	"assetledger/pkg/db"
)

var uniqueCounter int64

func nextSuffix() int64 {
	return atomic.AddInt64(&uniqueCounter, 1)
}

// NewTestPool connects to DATABASE_URL_FOR_TEST and applies the schema.
// Skips the test when the variable is not set.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	_ = godotenv.Load()
	dsn := os.Getenv("DATABASE_URL_FOR_TEST")
	if dsn == "" {
		t.Skip("DATABASE_URL_FOR_TEST not set; skipping postgres tests")
	}

	ctx := context.Background()
	cfg, err := pgxpool.ParseConfig(dsn)
	require.NoError(t, err)
	cfg.MaxConns = 4

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, pool.Ping(ctx))
	require.NoError(t, db.ApplySchema(ctx, pool))

	t.Cleanup(pool.Close)
	return pool
}

// TruncateAll empties every table touched by the service.
func TruncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(), "TRUNCATE TABLE accounts, assets, settlement_transfers, balances, sales RESTART IDENTITY")
	require.NoError(t, err)
}

// CreateTestAccount inserts an account with a unique email and returns its UUID.
func CreateTestAccount(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	suffix := nextSuffix()
	id := uuid.NewString()
	name := fmt.Sprintf("test-account-%d", suffix)
	email := fmt.Sprintf("%s-%s@example.com", name, id[:8])

	_, err := pool.Exec(context.Background(),
		"INSERT INTO accounts (uuid, name, email) VALUES ($1, $2, $3)", id, name, email)
	require.NoError(t, err)
	return id
}

// CreateTestAsset inserts an unlisted asset row owned by owner.
func CreateTestAsset(t *testing.T, pool *pgxpool.Pool, id int64, owner string) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		"INSERT INTO assets (id, creator, owner, metadata) VALUES ($1, $2, $2, $3)",
		id, owner, fmt.Sprintf("ipfs://test-%d", nextSuffix()))
	require.NoError(t, err)
}
