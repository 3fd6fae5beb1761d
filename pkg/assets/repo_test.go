package assets

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"assetledger/pkg/registry"
	"assetledger/pkg/settlement"
	"assetledger/pkg/testhelpers"
)

func TestPostgresAssetRepository_SaveAndLoad(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	testhelpers.TruncateAll(t, pool)

	repo := NewPostgresAssetRepository(pool)
	ctx := context.Background()
	creator := registry.Identity(testhelpers.CreateTestAccount(t, pool))
	buyer := registry.Identity(testhelpers.CreateTestAccount(t, pool))

	require.NoError(t, repo.SaveAsset(ctx, registry.Asset{ID: 2, Creator: creator, Owner: creator, Price: decimal.RequireFromString("9.99"), ForSale: true, Metadata: "b", Revision: 2}))
	require.NoError(t, repo.SaveAsset(ctx, registry.Asset{ID: 1, Creator: creator, Owner: creator, Price: decimal.Zero, Metadata: "a", Revision: 1}))

	// a sale overwrites owner and listing but keeps creator and metadata
	require.NoError(t, repo.SaveAsset(ctx, registry.Asset{ID: 2, Creator: creator, Owner: buyer, Price: decimal.Zero, Metadata: "ignored", Revision: 3}))

	// an older snapshot arriving late is ignored
	require.NoError(t, repo.SaveAsset(ctx, registry.Asset{ID: 2, Creator: creator, Owner: creator, Price: decimal.NewFromInt(1), ForSale: true, Revision: 2}))

	loaded, err := repo.LoadAssets(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	require.Equal(t, uint64(1), loaded[0].ID)
	require.Equal(t, "a", loaded[0].Metadata)

	require.Equal(t, uint64(2), loaded[1].ID)
	require.Equal(t, buyer, loaded[1].Owner)
	require.Equal(t, creator, loaded[1].Creator)
	require.False(t, loaded[1].ForSale)
	require.True(t, loaded[1].Price.IsZero())
	require.Equal(t, "b", loaded[1].Metadata)
	require.Equal(t, uint64(3), loaded[1].Revision)
}

func TestPostgresAssetRepository_RejectsBrokenListing(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	testhelpers.TruncateAll(t, pool)

	repo := NewPostgresAssetRepository(pool)
	err := repo.SaveAsset(context.Background(), registry.Asset{ID: 1, Creator: "a", Owner: "a", Price: decimal.Zero, ForSale: true, Revision: 1})
	require.Error(t, err)
}

func TestPostgresAssetRepository_RestoresRegistry(t *testing.T) {
	pool := testhelpers.NewTestPool(t)
	testhelpers.TruncateAll(t, pool)

	owner := testhelpers.CreateTestAccount(t, pool)
	testhelpers.CreateTestAsset(t, pool, 1, owner)
	testhelpers.CreateTestAsset(t, pool, 2, owner)
	testhelpers.CreateTestAsset(t, pool, 4, owner)

	reg := registry.New(settlement.NewLedger())
	n, err := RestoreRegistry(context.Background(), NewPostgresAssetRepository(pool), reg)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, uint64(4), reg.Count())

	_, err = reg.Get(3)
	require.ErrorIs(t, err, registry.ErrNotFound)

	id, err := reg.Create(context.Background(), registry.Identity(owner), "next")
	require.NoError(t, err)
	require.Equal(t, uint64(5), id)
}

