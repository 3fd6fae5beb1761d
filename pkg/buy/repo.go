package buy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"assetledger/pkg/registry"
)

var ErrHistoryUnavailable = errors.New("sales history is not configured")

// Sale is one completed purchase as recorded in the sales journal.
type Sale struct {
	EventID string            `json:"event_id"`
	AssetID uint64            `json:"asset_id"`
	Seller  registry.Identity `json:"seller"`
	Buyer   registry.Identity `json:"buyer"`
	Price   decimal.Decimal   `json:"price" swaggertype:"string"`
	Refund  decimal.Decimal   `json:"refund" swaggertype:"string"`
	SoldAt  time.Time         `json:"sold_at"`
}

type SalesRepository interface {
	RecordSale(ctx context.Context, sale Sale) error
	ListSales(ctx context.Context, assetID uint64, limit int) ([]Sale, error)
}

type postgresSalesRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresSalesRepository(pool *pgxpool.Pool) SalesRepository {
	return &postgresSalesRepository{pool: pool}
}

// RecordSale is idempotent on the event id so redelivered events are harmless.
func (r *postgresSalesRepository) RecordSale(ctx context.Context, sale Sale) error {
	query := `INSERT INTO sales (event_id, asset_id, seller, buyer, price, refund, sold_at)
              VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7)
              ON CONFLICT (event_id) DO NOTHING`

	_, err := r.pool.Exec(ctx, query, sale.EventID, int64(sale.AssetID), string(sale.Seller), string(sale.Buyer),
		sale.Price.String(), sale.Refund.String(), sale.SoldAt)
	return err
}

func (r *postgresSalesRepository) ListSales(ctx context.Context, assetID uint64, limit int) ([]Sale, error) {
	query := `SELECT event_id::text, asset_id, seller, buyer, price::text, refund::text, sold_at
              FROM sales WHERE asset_id = $1
              ORDER BY sold_at DESC
              LIMIT $2`

	rows, err := r.pool.Query(ctx, query, int64(assetID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]Sale, 0)
	for rows.Next() {
		var (
			s                 Sale
			id                int64
			seller, buyer     string
			rawPrice, rawBack string
		)
		if err := rows.Scan(&s.EventID, &id, &seller, &buyer, &rawPrice, &rawBack, &s.SoldAt); err != nil {
			return nil, err
		}
		if s.Price, err = decimal.NewFromString(rawPrice); err != nil {
			return nil, fmt.Errorf("sale %s price: %w", s.EventID, err)
		}
		if s.Refund, err = decimal.NewFromString(rawBack); err != nil {
			return nil, fmt.Errorf("sale %s refund: %w", s.EventID, err)
		}
		s.AssetID = uint64(id)
		s.Seller = registry.Identity(seller)
		s.Buyer = registry.Identity(buyer)
		sales = append(sales, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sales, nil
}
