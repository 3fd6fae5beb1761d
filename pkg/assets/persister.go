package assets

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"assetledger/pkg/registry"
)

// Snapshotter reads the current state of one asset.
type Snapshotter interface {
	Get(id uint64) (registry.Asset, error)
}

// Persister mirrors registry changes into an AssetRepository. It stores the
// state of the asset at processing time rather than replaying the event, so a
// late or reordered delivery still converges on the latest snapshot. Failed
// saves are retried, re-reading the asset on every attempt.
type Persister struct {
	repo       AssetRepository
	source     Snapshotter
	logger     *log.Entry
	newBackOff func() backoff.BackOff
}

type PersisterOption func(*Persister)

// WithRetryPolicy replaces the backoff used between failed saves of one asset.
func WithRetryPolicy(newBackOff func() backoff.BackOff) PersisterOption {
	return func(p *Persister) {
		if newBackOff != nil {
			p.newBackOff = newBackOff
		}
	}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 2 * time.Minute
	return b
}

func NewPersister(repo AssetRepository, source Snapshotter, opts ...PersisterOption) *Persister {
	p := &Persister{
		repo:       repo,
		source:     source,
		logger:     log.WithField("component", "asset-persister"),
		newBackOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run consumes events until the channel closes.
func (p *Persister) Run(ctx context.Context, events <-chan registry.Event) {
	for event := range events {
		p.persist(ctx, event)
	}
	p.logger.Debug("event stream closed")
}

func (p *Persister) persist(ctx context.Context, event registry.Event) {
	logger := p.logger.WithFields(log.Fields{"asset_id": event.AssetID, "event_type": event.Type})

	save := func() error {
		asset, err := p.source.Get(event.AssetID)
		if err != nil {
			return backoff.Permanent(err)
		}
		return p.repo.SaveAsset(ctx, asset)
	}
	retrying := func(err error, wait time.Duration) {
		logger.WithError(err).WithField("retry_in", wait.String()).Warn("failed to persist asset, retrying")
	}

	err := backoff.RetryNotify(save, backoff.WithContext(p.newBackOff(), ctx), retrying)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		logger.Warn("asset unknown to the registry, not persisted")
		return
	case err != nil:
		logger.WithError(err).Error("gave up persisting asset")
		return
	}
	logger.Debug("asset persisted")
}
