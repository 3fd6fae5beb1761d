package assets

import "assetledger/pkg/registry"

type AssetList struct {
	Items []registry.Asset `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

type AssetFilters struct {
	Owner   *registry.Identity
	ForSale *bool
}

func (f AssetFilters) match(a registry.Asset) bool {
	if f.Owner != nil && a.Owner != *f.Owner {
		return false
	}
	if f.ForSale != nil && a.ForSale != *f.ForSale {
		return false
	}
	return true
}

type CountSummary struct {
	Count uint64 `json:"count"`
}
