package settlement

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"assetledger/pkg/registry"
)

func TestLedger_CommitCreditsBalances(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(ctx, "alice", decimal.NewFromInt(100)))
	require.NoError(t, tx.Transfer(ctx, "bob", decimal.NewFromInt(50)))

	bal, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.IsZero(), "staged transfers must not be visible before commit")

	require.NoError(t, tx.Commit(ctx))

	bal, err = l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(100)))
	bal, err = l.Balance(ctx, "bob")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(50)))

	transfers := l.Transfers("alice")
	require.Len(t, transfers, 1)
	require.NotEmpty(t, transfers[0].ID)
	require.False(t, transfers[0].SettledAt.IsZero())
}

func TestLedger_RollbackDiscardsStagedTransfers(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(ctx, "alice", decimal.NewFromInt(100)))
	require.NoError(t, tx.Rollback(ctx))

	require.ErrorIs(t, tx.Commit(ctx), ErrTxDone)
	require.ErrorIs(t, tx.Transfer(ctx, "alice", decimal.NewFromInt(1)), ErrTxDone)

	bal, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.IsZero())
	require.Empty(t, l.Transfers("alice"))
}

func TestLedger_RollbackAfterCommitIsNoop(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()

	tx, err := l.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.Transfer(ctx, "alice", decimal.NewFromInt(7)))
	require.NoError(t, tx.Commit(ctx))
	require.NoError(t, tx.Rollback(ctx))

	bal, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, bal.Equal(decimal.NewFromInt(7)))
}

func TestLedger_TransferValidation(t *testing.T) {
	l := NewLedger()
	ctx := context.Background()
	tx, err := l.Begin(ctx)
	require.NoError(t, err)

	require.ErrorIs(t, tx.Transfer(ctx, "", decimal.NewFromInt(1)), ErrInvalidTarget)
	require.ErrorIs(t, tx.Transfer(ctx, "alice", decimal.Zero), ErrInvalidAmount)
	require.ErrorIs(t, tx.Transfer(ctx, "alice", decimal.NewFromInt(-1)), ErrInvalidAmount)
}

func TestLedger_BeginHonoursCancelledContext(t *testing.T) {
	l := NewLedger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Begin(ctx)

	require.ErrorIs(t, err, context.Canceled)
}

func TestLedger_SettlesRegistryPurchase(t *testing.T) {
	l := NewLedger()
	r := registry.New(l)
	ctx := context.Background()

	id, err := r.Create(ctx, "alice", "ipfs://x")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, "alice", id, decimal.RequireFromString("99.95")))

	_, err = r.Purchase(ctx, "bob", id, decimal.RequireFromString("120.00"))
	require.NoError(t, err)

	alice, err := l.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, alice.Equal(decimal.RequireFromString("99.95")))
	bob, err := l.Balance(ctx, "bob")
	require.NoError(t, err)
	require.True(t, bob.Equal(decimal.RequireFromString("20.05")))
}
