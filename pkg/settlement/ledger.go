// Package settlement implements the funds rail used to settle purchases.
package settlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"assetledger/pkg/registry"
)

var (
	ErrInvalidAmount = errors.New("transfer amount must be positive")
	ErrInvalidTarget = errors.New("transfer target is empty")
	ErrTxDone        = errors.New("settlement transaction already finished")
)

type Transfer struct {
	ID        string            `json:"id"`
	To        registry.Identity `json:"to"`
	Amount    decimal.Decimal   `json:"amount"`
	SettledAt time.Time         `json:"settled_at"`
}

// Ledger is an in-memory rail that credits payouts to per-identity balances.
type Ledger struct {
	mu       sync.RWMutex
	balances map[registry.Identity]decimal.Decimal
	journal  []Transfer
	logger   *log.Entry
}

func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[registry.Identity]decimal.Decimal),
		logger:   log.WithField("component", "ledger"),
	}
}

func (l *Ledger) Begin(ctx context.Context) (registry.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &ledgerTx{ledger: l}, nil
}

func (l *Ledger) Balance(ctx context.Context, id registry.Identity) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if b, ok := l.balances[id]; ok {
		return b, nil
	}
	return decimal.Zero, nil
}

// Transfers returns the committed transfers credited to id, oldest first.
func (l *Ledger) Transfers(id registry.Identity) []Transfer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Transfer, 0)
	for _, t := range l.journal {
		if t.To == id {
			out = append(out, t)
		}
	}
	return out
}

type ledgerTx struct {
	ledger *Ledger
	staged []Transfer
	done   bool
}

func (t *ledgerTx) Transfer(ctx context.Context, to registry.Identity, amount decimal.Decimal) error {
	if t.done {
		return ErrTxDone
	}
	if err := validateTransfer(to, amount); err != nil {
		return err
	}
	t.staged = append(t.staged, Transfer{ID: uuid.NewString(), To: to, Amount: amount})
	return nil
}

func (t *ledgerTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := t.ledger
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()
	for _, tr := range t.staged {
		tr.SettledAt = now
		l.balances[tr.To] = l.balances[tr.To].Add(tr.Amount)
		l.journal = append(l.journal, tr)
		l.logger.WithFields(log.Fields{"to": tr.To, "amount": tr.Amount.String()}).Debug("transfer settled")
	}
	t.done = true
	return nil
}

func (t *ledgerTx) Rollback(ctx context.Context) error {
	t.staged = nil
	t.done = true
	return nil
}

func validateTransfer(to registry.Identity, amount decimal.Decimal) error {
	if !to.Valid() {
		return ErrInvalidTarget
	}
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	return nil
}
