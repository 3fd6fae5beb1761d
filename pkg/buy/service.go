package buy

import (
	"context"

	"github.com/shopspring/decimal"

	"assetledger/pkg/registry"
)

type Registry interface {
	Purchase(ctx context.Context, requester registry.Identity, id uint64, tendered decimal.Decimal) (registry.Settlement, error)
	Delist(ctx context.Context, requester registry.Identity, id uint64) error
	Get(id uint64) (registry.Asset, error)
}

type BuyService interface {
	PurchaseAsset(ctx context.Context, buyer registry.Identity, assetID uint64, amount decimal.Decimal) (registry.Settlement, error)
	UnlistAsset(ctx context.Context, owner registry.Identity, assetID uint64) (registry.Asset, error)
	SalesHistory(ctx context.Context, assetID uint64, limit int) ([]Sale, error)
}

type buyService struct {
	reg   Registry
	sales SalesRepository
}

// NewBuyService wires purchases to reg. sales may be nil when no database is
// configured; SalesHistory then reports ErrHistoryUnavailable.
func NewBuyService(reg Registry, sales SalesRepository) BuyService {
	return &buyService{reg: reg, sales: sales}
}

func (s *buyService) PurchaseAsset(ctx context.Context, buyer registry.Identity, assetID uint64, amount decimal.Decimal) (registry.Settlement, error) {
	return s.reg.Purchase(ctx, buyer, assetID, amount)
}

func (s *buyService) UnlistAsset(ctx context.Context, owner registry.Identity, assetID uint64) (registry.Asset, error) {
	if err := s.reg.Delist(ctx, owner, assetID); err != nil {
		return registry.Asset{}, err
	}
	return s.reg.Get(assetID)
}

func (s *buyService) SalesHistory(ctx context.Context, assetID uint64, limit int) ([]Sale, error) {
	if s.sales == nil {
		return nil, ErrHistoryUnavailable
	}
	if _, err := s.reg.Get(assetID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	return s.sales.ListSales(ctx, assetID, limit)
}
