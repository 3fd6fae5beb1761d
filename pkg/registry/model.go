package registry

import (
	"time"

	"github.com/shopspring/decimal"
)

// Identity is the opaque token identifying a caller. The empty value is never a
// valid owner.
type Identity string

func (i Identity) Valid() bool {
	return i != ""
}

type Asset struct {
	ID       uint64          `json:"id"`
	Creator  Identity        `json:"creator"`
	Owner    Identity        `json:"owner"`
	Price    decimal.Decimal `json:"price" swaggertype:"string"`
	ForSale  bool            `json:"for_sale"`
	Metadata string          `json:"metadata"`
	// Revision increases by one on every committed change to the asset.
	Revision uint64          `json:"revision"`
}

// Settlement describes the value moved by a successful purchase.
type Settlement struct {
	AssetID uint64          `json:"asset_id"`
	Seller  Identity        `json:"seller"`
	Buyer   Identity        `json:"buyer"`
	Price   decimal.Decimal `json:"price" swaggertype:"string"`
	Refund  decimal.Decimal `json:"refund" swaggertype:"string"`
}

type EventType string

const (
	EventCreated  EventType = "asset.created"
	EventListed   EventType = "asset.listed"
	EventSold     EventType = "asset.sold"
	EventDelisted EventType = "asset.delisted"
)

// Event is the record handed to the Notifier after a successful mutation.
// Fields not relevant to the event type are left zero.
type Event struct {
	ID         string          `json:"id"`
	Type       EventType       `json:"type"`
	AssetID    uint64          `json:"asset_id"`
	Creator    Identity        `json:"creator,omitempty"`
	Seller     Identity        `json:"seller,omitempty"`
	Buyer      Identity        `json:"buyer,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Refund     decimal.Decimal `json:"refund"`
	OccurredAt time.Time       `json:"occurred_at"`
}
