package assets

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"assetledger/pkg/db"
	"assetledger/pkg/registry"
)

// AssetRepository stores registry snapshots so the registry can be rebuilt on
// start. The registry stays the source of truth while the process runs, and a
// snapshot never replaces a stored one with a newer revision.
type AssetRepository interface {
	SaveAsset(ctx context.Context, asset registry.Asset) error
	LoadAssets(ctx context.Context) ([]registry.Asset, error)
}

type postgresAssetRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAssetRepository(pool *pgxpool.Pool) AssetRepository {
	return &postgresAssetRepository{pool: pool}
}

func (r *postgresAssetRepository) SaveAsset(ctx context.Context, asset registry.Asset) error {
	_, err := db.UpsertAsset(ctx, r.pool, asset)
	return err
}

func (r *postgresAssetRepository) LoadAssets(ctx context.Context) ([]registry.Asset, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, creator, owner, price::text, for_sale, metadata, revision FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Asset
	for rows.Next() {
		var (
			a        registry.Asset
			id       int64
			creator  string
			owner    string
			rawPrice string
			revision int64
		)
		if err := rows.Scan(&id, &creator, &owner, &rawPrice, &a.ForSale, &a.Metadata, &revision); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(rawPrice)
		if err != nil {
			return nil, fmt.Errorf("asset %d: %w", id, err)
		}
		a.ID = uint64(id)
		a.Creator = registry.Identity(creator)
		a.Owner = registry.Identity(owner)
		a.Price = price
		a.Revision = uint64(revision)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

// RestoreRegistry loads every stored snapshot into an empty registry.
func RestoreRegistry(ctx context.Context, repo AssetRepository, reg interface{ Restore([]registry.Asset) error }) (int, error) {
	stored, err := repo.LoadAssets(ctx)
	if err != nil {
		return 0, fmt.Errorf("load assets: %w", err)
	}
	if err := reg.Restore(stored); err != nil {
		return 0, err
	}
	return len(stored), nil
}
