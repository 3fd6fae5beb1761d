package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgconn"

	"assetledger/pkg/registry"
)

// Execer is satisfied by *pgxpool.Pool and pgx.Tx.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

const upsertAssetSQL = `INSERT INTO assets (id, creator, owner, price, for_sale, metadata, revision, updated_at)
              VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, NOW())
              ON CONFLICT (id) DO UPDATE
              SET owner = EXCLUDED.owner, price = EXCLUDED.price, for_sale = EXCLUDED.for_sale,
                  revision = EXCLUDED.revision, updated_at = NOW()
              WHERE assets.revision < EXCLUDED.revision`

// UpsertAsset stores the snapshot unless the row already holds the same or a
// newer revision. It reports whether the row changed.
func UpsertAsset(ctx context.Context, q Execer, asset registry.Asset) (bool, error) {
	tag, err := q.Exec(ctx, upsertAssetSQL,
		int64(asset.ID), string(asset.Creator), string(asset.Owner), asset.Price.String(),
		asset.ForSale, asset.Metadata, int64(asset.Revision))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
