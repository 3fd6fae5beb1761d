package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"assetledger/pkg/db"
	"assetledger/pkg/registry"
)

// PostgresRail settles transfers inside a database transaction: every leg is
// journaled in settlement_transfers and credited to balances, and nothing is
// visible until Commit.
type PostgresRail struct {
	pool         *pgxpool.Pool
	recordAssets bool
}

type RailOption func(*PostgresRail)

// WithAssetRecording makes every settlement also upsert the sold asset into the
// assets table, so the ownership change commits together with the payment.
func WithAssetRecording() RailOption {
	return func(r *PostgresRail) {
		r.recordAssets = true
	}
}

func NewPostgresRail(pool *pgxpool.Pool, opts ...RailOption) *PostgresRail {
	r := &PostgresRail{pool: pool}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *PostgresRail) Begin(ctx context.Context) (registry.Tx, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &postgresTx{tx: tx, recordAssets: r.recordAssets}, nil
}

func (r *PostgresRail) Balance(ctx context.Context, id registry.Identity) (decimal.Decimal, error) {
	var raw string
	err := r.pool.QueryRow(ctx, `SELECT amount::text FROM balances WHERE account = $1`, string(id)).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

type postgresTx struct {
	tx           pgx.Tx
	recordAssets bool
}

func (t *postgresTx) Transfer(ctx context.Context, to registry.Identity, amount decimal.Decimal) error {
	if err := validateTransfer(to, amount); err != nil {
		return err
	}

	if _, err := t.tx.Exec(ctx,
		`INSERT INTO settlement_transfers (id, recipient, amount, settled_at) VALUES ($1, $2, $3::numeric, NOW())`,
		uuid.NewString(), string(to), amount.String(),
	); err != nil {
		return fmt.Errorf("journal transfer: %w", err)
	}

	if _, err := t.tx.Exec(ctx,
		`INSERT INTO balances (account, amount) VALUES ($1, $2::numeric)
		 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		string(to), amount.String(),
	); err != nil {
		return fmt.Errorf("credit balance: %w", err)
	}
	return nil
}

func (t *postgresTx) RecordAsset(ctx context.Context, asset registry.Asset) error {
	if !t.recordAssets {
		return nil
	}
	_, err := db.UpsertAsset(ctx, t.tx, asset)
	return err
}

func (t *postgresTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *postgresTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}
