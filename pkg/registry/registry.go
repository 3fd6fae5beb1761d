// Package registry holds the asset lifecycle state machine: minting, listing,
// purchasing and delisting assets, with purchase settlement run inside a
// transaction that is rolled back together with the ownership change on failure.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type record struct {
	mu    sync.Mutex
	asset Asset
}

// Registry is safe for concurrent use. Operations on different assets only
// share the map read lock; operations on the same asset are serialized on the
// asset's own mutex, including the settlement call.
type Registry struct {
	mu     sync.RWMutex
	assets map[uint64]*record
	nextID uint64

	rail     Rail
	notifier Notifier
	logger   *log.Entry
	now      func() time.Time
}

type Option func(*Registry)

func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		if n != nil {
			r.notifier = n
		}
	}
}

func WithLogger(entry *log.Entry) Option {
	return func(r *Registry) {
		if entry != nil {
			r.logger = entry
		}
	}
}

func New(rail Rail, opts ...Option) *Registry {
	r := &Registry{
		assets:   make(map[uint64]*record),
		nextID:   1,
		rail:     rail,
		notifier: nopNotifier{},
		logger:   log.WithField("component", "registry"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) Create(ctx context.Context, requester Identity, metadata string) (uint64, error) {
	if !requester.Valid() {
		return 0, ErrInvalidIdentity
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextID
	r.assets[id] = &record{asset: Asset{
		ID:       id,
		Creator:  requester,
		Owner:    requester,
		Price:    decimal.Zero,
		Metadata: metadata,
		Revision: 1,
	}}
	r.nextID++

	r.logger.WithFields(log.Fields{"asset_id": id, "creator": requester}).Debug("asset created")
	r.emit(Event{Type: EventCreated, AssetID: id, Creator: requester})
	return id, nil
}

func (r *Registry) List(ctx context.Context, requester Identity, id uint64, price decimal.Decimal) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.asset.Owner != requester {
		return ErrNotOwner
	}
	if !price.IsPositive() {
		return ErrInvalidPrice
	}

	rec.asset.Price = price
	rec.asset.ForSale = true
	rec.asset.Revision++

	r.logger.WithFields(log.Fields{"asset_id": id, "price": price.String()}).Debug("asset listed")
	r.emit(Event{Type: EventListed, AssetID: id, Seller: requester, Price: price})
	return nil
}

// Purchase transfers a listed asset to requester. The sale price goes to the
// previous owner and any excess over it is refunded to requester, both inside
// one settlement transaction. When settlement fails the asset is left exactly
// as it was before the call.
func (r *Registry) Purchase(ctx context.Context, requester Identity, id uint64, tendered decimal.Decimal) (Settlement, error) {
	if !requester.Valid() {
		return Settlement{}, ErrInvalidIdentity
	}

	rec, err := r.lookup(id)
	if err != nil {
		return Settlement{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if !rec.asset.ForSale {
		return Settlement{}, ErrNotForSale
	}
	if tendered.LessThan(rec.asset.Price) {
		return Settlement{}, ErrInsufficientPayment
	}
	if rec.asset.Owner == requester {
		return Settlement{}, ErrSelfPurchase
	}

	previous := rec.asset
	s := Settlement{
		AssetID: id,
		Seller:  previous.Owner,
		Buyer:   requester,
		Price:   previous.Price,
		Refund:  tendered.Sub(previous.Price),
	}

	rec.asset.Owner = requester
	rec.asset.ForSale = false
	rec.asset.Price = decimal.Zero
	rec.asset.Revision++

	if err := r.settle(ctx, s, rec.asset); err != nil {
		rec.asset = previous
		r.logger.WithError(err).WithFields(log.Fields{
			"asset_id": id,
			"buyer":    requester,
			"seller":   s.Seller,
		}).Warn("purchase rolled back")
		return Settlement{}, fmt.Errorf("%w: %v", ErrSettlementFailure, err)
	}

	r.logger.WithFields(log.Fields{
		"asset_id": id,
		"buyer":    requester,
		"seller":   s.Seller,
		"price":    s.Price.String(),
	}).Info("asset sold")
	r.emit(Event{
		Type:    EventSold,
		AssetID: id,
		Seller:  s.Seller,
		Buyer:   s.Buyer,
		Price:   s.Price,
		Refund:  s.Refund,
	})
	return s, nil
}

func (r *Registry) settle(ctx context.Context, s Settlement, sold Asset) (err error) {
	tx, err := r.rail.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin settlement: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			r.logger.WithError(rbErr).WithField("asset_id", s.AssetID).Error("settlement rollback failed")
		}
	}()

	if err = tx.Transfer(ctx, s.Seller, s.Price); err != nil {
		return fmt.Errorf("pay seller: %w", err)
	}
	if s.Refund.IsPositive() {
		if err = tx.Transfer(ctx, s.Buyer, s.Refund); err != nil {
			return fmt.Errorf("refund buyer: %w", err)
		}
	}
	if recorder, ok := tx.(AssetRecorder); ok {
		if err = recorder.RecordAsset(ctx, sold); err != nil {
			return fmt.Errorf("record asset: %w", err)
		}
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit settlement: %w", err)
	}
	return nil
}

func (r *Registry) Delist(ctx context.Context, requester Identity, id uint64) error {
	rec, err := r.lookup(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if rec.asset.Owner != requester {
		return ErrNotOwner
	}
	if !rec.asset.ForSale {
		return ErrNotListed
	}

	rec.asset.ForSale = false
	rec.asset.Price = decimal.Zero
	rec.asset.Revision++

	r.logger.WithField("asset_id", id).Debug("asset delisted")
	r.emit(Event{Type: EventDelisted, AssetID: id, Seller: requester})
	return nil
}

func (r *Registry) Get(id uint64) (Asset, error) {
	rec, err := r.lookup(id)
	if err != nil {
		return Asset{}, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.asset, nil
}

func (r *Registry) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nextID - 1
}

// Assets returns a copy of every record in id order.
func (r *Registry) Assets() []Asset {
	r.mu.RLock()
	n := r.nextID - 1
	recs := make([]*record, 0, n)
	for id := uint64(1); id <= n; id++ {
		if rec, ok := r.assets[id]; ok {
			recs = append(recs, rec)
		}
	}
	r.mu.RUnlock()

	out := make([]Asset, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.asset)
		rec.mu.Unlock()
	}
	return out
}

// Restore loads previously persisted records into an empty registry. Records
// must be in ascending id order and satisfy the listing invariants. Ids missing
// from the snapshot stay unknown, and the counter resumes after the highest
// restored id so no id is ever issued twice.
func (r *Registry) Restore(assets []Asset) error {
	var last uint64
	for _, a := range assets {
		if err := validateSnapshot(last, a); err != nil {
			return err
		}
		last = a.ID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.nextID != 1 {
		return fmt.Errorf("%w: registry already holds %d assets", ErrCorruptSnapshot, r.nextID-1)
	}
	for _, a := range assets {
		if !a.ForSale {
			a.Price = decimal.Zero
		}
		if a.Revision == 0 {
			a.Revision = 1
		}
		r.assets[a.ID] = &record{asset: a}
	}
	r.nextID = last + 1

	logger := r.logger.WithFields(log.Fields{"count": len(assets), "next_id": r.nextID})
	if missing := last - uint64(len(assets)); missing > 0 {
		logger.WithField("missing", missing).Warn("registry restored with missing assets")
		return nil
	}
	logger.Info("registry restored")
	return nil
}

func validateSnapshot(prev uint64, a Asset) error {
	switch {
	case a.ID <= prev:
		return fmt.Errorf("%w: id %d does not follow %d", ErrCorruptSnapshot, a.ID, prev)
	case !a.Creator.Valid() || !a.Owner.Valid():
		return fmt.Errorf("%w: asset %d has an empty creator or owner", ErrCorruptSnapshot, a.ID)
	case a.ForSale && !a.Price.IsPositive():
		return fmt.Errorf("%w: asset %d is listed without a positive price", ErrCorruptSnapshot, a.ID)
	case !a.ForSale && !a.Price.IsZero():
		return fmt.Errorf("%w: asset %d is unlisted with a price", ErrCorruptSnapshot, a.ID)
	}
	return nil
}

func (r *Registry) lookup(id uint64) (*record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.assets[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (r *Registry) emit(e Event) {
	e.ID = uuid.NewString()
	e.OccurredAt = r.now()
	r.notifier.Notify(e)
}
