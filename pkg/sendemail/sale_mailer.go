package sendemail

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"assetledger/pkg/registry"
)

const (
	addressTTL          = 10 * time.Minute
	addressCleanupEvery = 30 * time.Minute
)

// Directory resolves the mailbox registered for an identity.
type Directory interface {
	EmailFor(ctx context.Context, id registry.Identity) (string, error)
}

// SaleMailer emails the seller and the buyer after every sale. Identities
// without an account are skipped.
type SaleMailer struct {
	email     EmailService
	directory Directory
	addresses *gocache.Cache
	logger    *log.Entry
}

func NewSaleMailer(email EmailService, directory Directory) *SaleMailer {
	return &SaleMailer{
		email:     email,
		directory: directory,
		addresses: gocache.New(addressTTL, addressCleanupEvery),
		logger:    log.WithField("component", "sale-mailer"),
	}
}

func (m *SaleMailer) Run(ctx context.Context, events <-chan registry.Event) {
	for event := range events {
		if event.Type != registry.EventSold {
			continue
		}
		m.notifySeller(ctx, event)
		m.notifyBuyer(ctx, event)
	}
}

func (m *SaleMailer) notifySeller(ctx context.Context, e registry.Event) {
	subject := fmt.Sprintf("Asset #%d sold", e.AssetID)
	text := fmt.Sprintf("Your asset #%d was sold for %s.", e.AssetID, e.Price.String())
	html := fmt.Sprintf("<p>Your asset <strong>#%d</strong> was sold for <strong>%s</strong>.</p>", e.AssetID, e.Price.String())
	m.send(ctx, e.Seller, subject, text, html)
}

func (m *SaleMailer) notifyBuyer(ctx context.Context, e registry.Event) {
	subject := fmt.Sprintf("You now own asset #%d", e.AssetID)
	text := fmt.Sprintf("You bought asset #%d for %s.", e.AssetID, e.Price.String())
	html := fmt.Sprintf("<p>You bought asset <strong>#%d</strong> for <strong>%s</strong>.</p>", e.AssetID, e.Price.String())
	if e.Refund.IsPositive() {
		text += fmt.Sprintf(" %s was refunded to you.", e.Refund.String())
		html += fmt.Sprintf("<p>%s was refunded to you.</p>", e.Refund.String())
	}
	m.send(ctx, e.Buyer, subject, text, html)
}

func (m *SaleMailer) send(ctx context.Context, to registry.Identity, subject, text, html string) {
	logger := m.logger.WithField("identity", to)

	addr, err := m.lookup(ctx, to)
	if err != nil {
		logger.WithError(err).Debug("no mailbox for identity")
		return
	}

	if err := m.email.SendEmail(subject, addr, text, html); err != nil {
		logger.WithError(err).Warn("failed to send sale email")
		return
	}
	logger.WithField("subject", subject).Info("sale email sent")
}

func (m *SaleMailer) lookup(ctx context.Context, id registry.Identity) (string, error) {
	if cached, ok := m.addresses.Get(string(id)); ok {
		if addr, ok := cached.(string); ok {
			return addr, nil
		}
	}

	addr, err := m.directory.EmailFor(ctx, id)
	if err != nil {
		return "", err
	}
	m.addresses.SetDefault(string(id), addr)
	return addr, nil
}
