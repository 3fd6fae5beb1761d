package assets

import (
	"context"

	"github.com/shopspring/decimal"

	"assetledger/pkg/registry"
)

// Registry is the part of *registry.Registry the asset surface needs.
type Registry interface {
	Create(ctx context.Context, requester registry.Identity, metadata string) (uint64, error)
	List(ctx context.Context, requester registry.Identity, id uint64, price decimal.Decimal) error
	Get(id uint64) (registry.Asset, error)
	Count() uint64
	Assets() []registry.Asset
}

type AssetService interface {
	CreateAsset(ctx context.Context, creator registry.Identity, metadata string) (registry.Asset, error)
	ListForSale(ctx context.Context, owner registry.Identity, id uint64, price decimal.Decimal) (registry.Asset, error)
	GetAssetByID(ctx context.Context, id uint64) (registry.Asset, error)
	ListAssets(ctx context.Context, filters AssetFilters, page, limit int) ([]registry.Asset, int64, error)
	CountAssets(ctx context.Context) uint64
}

type assetService struct {
	reg Registry
}

func NewAssetService(reg Registry) AssetService {
	return &assetService{reg: reg}
}

func (s *assetService) CreateAsset(ctx context.Context, creator registry.Identity, metadata string) (registry.Asset, error) {
	id, err := s.reg.Create(ctx, creator, metadata)
	if err != nil {
		return registry.Asset{}, err
	}
	return s.reg.Get(id)
}

func (s *assetService) ListForSale(ctx context.Context, owner registry.Identity, id uint64, price decimal.Decimal) (registry.Asset, error) {
	if err := s.reg.List(ctx, owner, id, price); err != nil {
		return registry.Asset{}, err
	}
	return s.reg.Get(id)
}

func (s *assetService) GetAssetByID(ctx context.Context, id uint64) (registry.Asset, error) {
	return s.reg.Get(id)
}

// ListAssets pages over a point-in-time copy of every asset in id order.
func (s *assetService) ListAssets(ctx context.Context, filters AssetFilters, page, limit int) ([]registry.Asset, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	offset := (page - 1) * limit

	matched := make([]registry.Asset, 0)
	for _, a := range s.reg.Assets() {
		if filters.match(a) {
			matched = append(matched, a)
		}
	}

	total := int64(len(matched))
	if offset >= len(matched) {
		return []registry.Asset{}, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (s *assetService) CountAssets(ctx context.Context) uint64 {
	return s.reg.Count()
}
