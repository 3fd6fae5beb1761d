package buy

import (
	"context"

	log "github.com/sirupsen/logrus"

	"assetledger/pkg/registry"
)

// Journal appends every sold event to the sales repository.
type Journal struct {
	repo   SalesRepository
	logger *log.Entry
}

func NewJournal(repo SalesRepository) *Journal {
	return &Journal{repo: repo, logger: log.WithField("component", "sales-journal")}
}

func (j *Journal) Run(ctx context.Context, events <-chan registry.Event) {
	for event := range events {
		if event.Type != registry.EventSold {
			continue
		}

		sale := Sale{
			EventID: event.ID,
			AssetID: event.AssetID,
			Seller:  event.Seller,
			Buyer:   event.Buyer,
			Price:   event.Price,
			Refund:  event.Refund,
			SoldAt:  event.OccurredAt,
		}
		if err := j.repo.RecordSale(ctx, sale); err != nil {
			j.logger.WithError(err).WithField("asset_id", event.AssetID).Error("failed to record sale")
			continue
		}
		j.logger.WithFields(log.Fields{"asset_id": event.AssetID, "price": event.Price.String()}).Info("sale recorded")
	}
}
