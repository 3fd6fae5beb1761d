package registry

import (
	"context"

	"github.com/shopspring/decimal"
)

// Rail opens settlement transactions against the external funds rail.
type Rail interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx stages transfers until Commit. Rollback after a successful Commit is a no-op.
type Tx interface {
	Transfer(ctx context.Context, to Identity, amount decimal.Decimal) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// AssetRecorder is implemented by a Tx that stores the post-sale asset in the
// same transaction as the transfers, so a committed payment is never durable
// without the ownership change that caused it.
type AssetRecorder interface {
	RecordAsset(ctx context.Context, asset Asset) error
}

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(event Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}
