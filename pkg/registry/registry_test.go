package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	alice Identity = "alice"
	bob   Identity = "bob"
	carol Identity = "carol"
)

// fakeRail records committed transfers per identity and can be told to fail
// at any stage of a settlement transaction.
type fakeRail struct {
	mu         sync.Mutex
	credits    map[Identity]decimal.Decimal
	beginErr   error
	failOnCall int // 1-based Transfer call that fails; 0 never fails
	commitErr  error
	calls      int
	rollbacks  int
}

func newFakeRail() *fakeRail {
	return &fakeRail{credits: make(map[Identity]decimal.Decimal)}
}

func (f *fakeRail) Begin(ctx context.Context) (Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return &fakeTx{rail: f}, nil
}

func (f *fakeRail) credit(id Identity) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credits[id]
}

type fakeTransfer struct {
	to     Identity
	amount decimal.Decimal
}

type fakeTx struct {
	rail    *fakeRail
	staged  []fakeTransfer
	settled bool
}

func (t *fakeTx) Transfer(ctx context.Context, to Identity, amount decimal.Decimal) error {
	t.rail.mu.Lock()
	defer t.rail.mu.Unlock()
	t.rail.calls++
	if t.rail.failOnCall != 0 && t.rail.calls == t.rail.failOnCall {
		return errors.New("rail unavailable")
	}
	t.staged = append(t.staged, fakeTransfer{to: to, amount: amount})
	return nil
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.rail.mu.Lock()
	defer t.rail.mu.Unlock()
	if t.rail.commitErr != nil {
		return t.rail.commitErr
	}
	for _, tr := range t.staged {
		t.rail.credits[tr.to] = t.rail.credits[tr.to].Add(tr.amount)
	}
	t.settled = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rail.mu.Lock()
	defer t.rail.mu.Unlock()
	if !t.settled {
		t.rail.rollbacks++
	}
	t.staged = nil
	return nil
}

// recordingTx is a fakeTx that also stores the sold asset before commit.
type recordingTx struct {
	fakeTx
	recordErr error
	recorded  *[]Asset
}

func (t *recordingTx) RecordAsset(ctx context.Context, asset Asset) error {
	if t.recordErr != nil {
		return t.recordErr
	}
	*t.recorded = append(*t.recorded, asset)
	return nil
}

type recordingRail struct {
	*fakeRail
	recordErr error
	recorded  []Asset
}

func (r *recordingRail) Begin(ctx context.Context) (Tx, error) {
	return &recordingTx{fakeTx: fakeTx{rail: r.fakeRail}, recordErr: r.recordErr, recorded: &r.recorded}, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Notify(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) all() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Event(nil), n.events...)
}

func amount(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func requireListing(t *testing.T, r *Registry, id uint64, owner Identity, forSale bool, price int64) {
	t.Helper()
	a, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, owner, a.Owner)
	require.Equal(t, forSale, a.ForSale)
	require.True(t, a.Price.Equal(amount(price)), "price %s, want %d", a.Price, price)
}

func TestRegistry_Create_AssignsSequentialIDs(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		id, err := r.Create(ctx, alice, "ipfs://x")
		require.NoError(t, err)
		require.Equal(t, want, id)
	}
	require.Equal(t, uint64(3), r.Count())

	a, err := r.Get(2)
	require.NoError(t, err)
	require.Equal(t, alice, a.Creator)
	require.Equal(t, alice, a.Owner)
	require.False(t, a.ForSale)
	require.True(t, a.Price.IsZero())
	require.Equal(t, "ipfs://x", a.Metadata)
}

func TestRegistry_Create_EmptyMetadataAllowed(t *testing.T) {
	r := New(newFakeRail())

	id, err := r.Create(context.Background(), alice, "")
	require.NoError(t, err)

	a, err := r.Get(id)
	require.NoError(t, err)
	require.Empty(t, a.Metadata)
}

func TestRegistry_Create_InvalidIdentity(t *testing.T) {
	r := New(newFakeRail())

	_, err := r.Create(context.Background(), "", "m")

	require.ErrorIs(t, err, ErrInvalidIdentity)
	require.Zero(t, r.Count())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	r := New(newFakeRail())

	_, err := r.Get(0)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Get(1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_ScenarioA_CreateAndList(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()

	id, err := r.Create(ctx, alice, "ipfs://x")
	require.NoError(t, err)
	require.Equal(t, uint64(1), id)

	require.NoError(t, r.List(ctx, alice, 1, amount(100)))

	requireListing(t, r, 1, alice, true, 100)
}

func TestRegistry_ScenarioB_PurchaseNeverListed(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)

	_, err = r.Purchase(ctx, bob, 1, amount(50))

	require.ErrorIs(t, err, ErrNotForSale)
	requireListing(t, r, 1, alice, false, 0)
}

func TestRegistry_ScenarioC_InsufficientPayment(t *testing.T) {
	rail := newFakeRail()
	r := New(rail)
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))

	_, err = r.Purchase(ctx, bob, 1, amount(80))

	require.ErrorIs(t, err, ErrInsufficientPayment)
	requireListing(t, r, 1, alice, true, 100)
	require.Zero(t, rail.calls)
}

func TestRegistry_ScenarioD_PurchaseWithRefund(t *testing.T) {
	rail := newFakeRail()
	r := New(rail)
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))

	s, err := r.Purchase(ctx, bob, 1, amount(150))

	require.NoError(t, err)
	require.Equal(t, alice, s.Seller)
	require.Equal(t, bob, s.Buyer)
	require.True(t, s.Price.Equal(amount(100)))
	require.True(t, s.Refund.Equal(amount(50)))
	require.True(t, rail.credit(alice).Equal(amount(100)))
	require.True(t, rail.credit(bob).Equal(amount(50)))
	requireListing(t, r, 1, bob, false, 0)

	a, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, alice, a.Creator)
}

func TestRegistry_ScenarioE_SelfPurchase(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))

	_, err = r.Purchase(ctx, alice, 1, amount(100))

	require.ErrorIs(t, err, ErrSelfPurchase)
	requireListing(t, r, 1, alice, true, 100)
}

func TestRegistry_ScenarioF_DelistUnlisted(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)

	err = r.Delist(ctx, alice, 1)

	require.ErrorIs(t, err, ErrNotListed)
}

func TestRegistry_Purchase_ExactAmountSkipsRefund(t *testing.T) {
	rail := newFakeRail()
	r := New(rail)
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))

	s, err := r.Purchase(ctx, bob, 1, amount(100))

	require.NoError(t, err)
	require.True(t, s.Refund.IsZero())
	require.Equal(t, 1, rail.calls)
	require.True(t, rail.credit(bob).IsZero())
}

func TestRegistry_Purchase_NotFound(t *testing.T) {
	r := New(newFakeRail())

	_, err := r.Purchase(context.Background(), bob, 7, amount(1))

	require.ErrorIs(t, err, ErrNotFound)
}

func TestRegistry_List_Errors(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)

	require.ErrorIs(t, r.List(ctx, alice, 9, amount(10)), ErrNotFound)
	require.ErrorIs(t, r.List(ctx, bob, 1, amount(10)), ErrNotOwner)
	require.ErrorIs(t, r.List(ctx, alice, 1, decimal.Zero), ErrInvalidPrice)
	require.ErrorIs(t, r.List(ctx, alice, 1, amount(-5)), ErrInvalidPrice)

	requireListing(t, r, 1, alice, false, 0)
}

func TestRegistry_List_NonOwnerLeavesListingUnchanged(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(40)))

	require.ErrorIs(t, r.List(ctx, bob, 1, amount(1)), ErrNotOwner)

	requireListing(t, r, 1, alice, true, 40)
}

func TestRegistry_List_RelistUpdatesPrice(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)

	require.NoError(t, r.List(ctx, alice, 1, amount(40)))
	require.NoError(t, r.List(ctx, alice, 1, amount(55)))

	requireListing(t, r, 1, alice, true, 55)
}

func TestRegistry_Delist(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(40)))

	require.ErrorIs(t, r.Delist(ctx, bob, 1), ErrNotOwner)
	require.ErrorIs(t, r.Delist(ctx, alice, 2), ErrNotFound)
	requireListing(t, r, 1, alice, true, 40)

	require.NoError(t, r.Delist(ctx, alice, 1))
	requireListing(t, r, 1, alice, false, 0)
}

func TestRegistry_Purchase_SettlementFailureRollsBack(t *testing.T) {
	tests := []struct {
		name      string
		configure func(*fakeRail)
		tendered  int64
	}{
		{name: "begin fails", configure: func(f *fakeRail) { f.beginErr = errors.New("rail down") }, tendered: 100},
		{name: "seller leg fails", configure: func(f *fakeRail) { f.failOnCall = 1 }, tendered: 150},
		{name: "refund leg fails", configure: func(f *fakeRail) { f.failOnCall = 2 }, tendered: 150},
		{name: "commit fails", configure: func(f *fakeRail) { f.commitErr = errors.New("commit refused") }, tendered: 150},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rail := newFakeRail()
			notifier := &recordingNotifier{}
			r := New(rail, WithNotifier(notifier))
			ctx := context.Background()
			_, err := r.Create(ctx, alice, "m")
			require.NoError(t, err)
			require.NoError(t, r.List(ctx, alice, 1, amount(100)))
			tc.configure(rail)

			_, err = r.Purchase(ctx, bob, 1, amount(tc.tendered))

			require.ErrorIs(t, err, ErrSettlementFailure)
			requireListing(t, r, 1, alice, true, 100)
			require.True(t, rail.credit(alice).IsZero())
			require.True(t, rail.credit(bob).IsZero())
			for _, e := range notifier.all() {
				require.NotEqual(t, EventSold, e.Type)
			}
		})
	}
}

func TestRegistry_Purchase_RetryAfterSettlementFailure(t *testing.T) {
	rail := newFakeRail()
	r := New(rail)
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))

	rail.commitErr = errors.New("commit refused")
	_, err = r.Purchase(ctx, bob, 1, amount(100))
	require.ErrorIs(t, err, ErrSettlementFailure)
	require.Equal(t, 1, rail.rollbacks)

	rail.commitErr = nil
	_, err = r.Purchase(ctx, bob, 1, amount(100))
	require.NoError(t, err)
	requireListing(t, r, 1, bob, false, 0)
	require.True(t, rail.credit(alice).Equal(amount(100)))
}

func TestRegistry_ResaleBySecondOwner(t *testing.T) {
	rail := newFakeRail()
	r := New(rail)
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))
	_, err = r.Purchase(ctx, bob, 1, amount(100))
	require.NoError(t, err)

	require.ErrorIs(t, r.List(ctx, alice, 1, amount(10)), ErrNotOwner)
	require.NoError(t, r.List(ctx, bob, 1, amount(300)))
	_, err = r.Purchase(ctx, carol, 1, amount(300))
	require.NoError(t, err)

	requireListing(t, r, 1, carol, false, 0)
	require.True(t, rail.credit(bob).Equal(amount(300)))
	a, err := r.Get(1)
	require.NoError(t, err)
	require.Equal(t, alice, a.Creator)
}

func TestRegistry_Notifications(t *testing.T) {
	notifier := &recordingNotifier{}
	r := New(newFakeRail(), WithNotifier(notifier))
	ctx := context.Background()

	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, 1, amount(100)))
	require.NoError(t, r.Delist(ctx, alice, 1))
	require.NoError(t, r.List(ctx, alice, 1, amount(120)))
	_, err = r.Purchase(ctx, bob, 1, amount(130))
	require.NoError(t, err)

	events := notifier.all()
	require.Len(t, events, 5)

	require.Equal(t, EventCreated, events[0].Type)
	require.Equal(t, alice, events[0].Creator)
	require.Equal(t, EventListed, events[1].Type)
	require.True(t, events[1].Price.Equal(amount(100)))
	require.Equal(t, EventDelisted, events[2].Type)
	require.Equal(t, EventListed, events[3].Type)

	sold := events[4]
	require.Equal(t, EventSold, sold.Type)
	require.Equal(t, uint64(1), sold.AssetID)
	require.Equal(t, alice, sold.Seller)
	require.Equal(t, bob, sold.Buyer)
	require.True(t, sold.Price.Equal(amount(120)))
	require.True(t, sold.Refund.Equal(amount(10)))

	seen := make(map[string]bool)
	for _, e := range events {
		require.NotEmpty(t, e.ID)
		require.False(t, seen[e.ID])
		seen[e.ID] = true
		require.False(t, e.OccurredAt.IsZero())
	}
}

func TestRegistry_FailedOperationsDoNotNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	r := New(newFakeRail(), WithNotifier(notifier))
	ctx := context.Background()
	_, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)

	_ = r.List(ctx, bob, 1, amount(1))
	_ = r.Delist(ctx, alice, 1)
	_, _ = r.Purchase(ctx, bob, 1, amount(1))

	require.Len(t, notifier.all(), 1)
}

func TestRegistry_AssetsAndRestore(t *testing.T) {
	src := New(newFakeRail())
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := src.Create(ctx, alice, "m")
		require.NoError(t, err)
	}
	require.NoError(t, src.List(ctx, alice, 2, amount(25)))

	snapshot := src.Assets()
	require.Len(t, snapshot, 3)

	dst := New(newFakeRail())
	require.NoError(t, dst.Restore(snapshot))
	require.Equal(t, uint64(3), dst.Count())
	requireListing(t, dst, 2, alice, true, 25)

	id, err := dst.Create(ctx, bob, "next")
	require.NoError(t, err)
	require.Equal(t, uint64(4), id)

	require.ErrorIs(t, dst.Restore(snapshot), ErrCorruptSnapshot)
}

func TestRegistry_Restore_RejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name   string
		assets []Asset
	}{
		{name: "ids out of order", assets: []Asset{
			{ID: 3, Creator: alice, Owner: alice, Price: decimal.Zero},
			{ID: 1, Creator: alice, Owner: alice, Price: decimal.Zero},
		}},
		{name: "duplicate id", assets: []Asset{
			{ID: 1, Creator: alice, Owner: alice, Price: decimal.Zero},
			{ID: 1, Creator: bob, Owner: bob, Price: decimal.Zero},
		}},
		{name: "zero id", assets: []Asset{
			{ID: 0, Creator: alice, Owner: alice, Price: decimal.Zero},
		}},
		{name: "empty owner", assets: []Asset{
			{ID: 1, Creator: alice, Price: decimal.Zero},
		}},
		{name: "listed without price", assets: []Asset{
			{ID: 1, Creator: alice, Owner: alice, ForSale: true, Price: decimal.Zero},
		}},
		{name: "unlisted with price", assets: []Asset{
			{ID: 1, Creator: alice, Owner: alice, Price: amount(3)},
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(newFakeRail())

			require.ErrorIs(t, r.Restore(tc.assets), ErrCorruptSnapshot)
			require.Zero(t, r.Count())
		})
	}
}

func TestRegistry_Restore_ToleratesMissingIDs(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()

	require.NoError(t, r.Restore([]Asset{
		{ID: 1, Creator: alice, Owner: alice, Price: decimal.Zero, Revision: 1},
		{ID: 3, Creator: bob, Owner: bob, Price: amount(5), ForSale: true, Revision: 2},
	}))
	require.Equal(t, uint64(3), r.Count())

	_, err := r.Get(2)
	require.ErrorIs(t, err, ErrNotFound)
	requireListing(t, r, 3, bob, true, 5)
	require.Len(t, r.Assets(), 2)

	id, err := r.Create(ctx, carol, "after gap")
	require.NoError(t, err)
	require.Equal(t, uint64(4), id)
}

func TestRegistry_RevisionAdvancesOnEveryChange(t *testing.T) {
	r := New(newFakeRail())
	ctx := context.Background()
	id, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)

	revision := func() uint64 {
		a, err := r.Get(id)
		require.NoError(t, err)
		return a.Revision
	}
	require.Equal(t, uint64(1), revision())

	require.NoError(t, r.List(ctx, alice, id, amount(10)))
	require.Equal(t, uint64(2), revision())
	require.ErrorIs(t, r.List(ctx, bob, id, amount(10)), ErrNotOwner)
	require.Equal(t, uint64(2), revision())

	require.NoError(t, r.Delist(ctx, alice, id))
	require.Equal(t, uint64(3), revision())

	require.NoError(t, r.List(ctx, alice, id, amount(10)))
	_, err = r.Purchase(ctx, bob, id, amount(10))
	require.NoError(t, err)
	require.Equal(t, uint64(5), revision())
}

func TestRegistry_Purchase_RecordsSoldAssetInSettlement(t *testing.T) {
	rail := &recordingRail{fakeRail: newFakeRail()}
	r := New(rail)
	ctx := context.Background()
	id, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, id, amount(100)))

	_, err = r.Purchase(ctx, bob, id, amount(100))
	require.NoError(t, err)

	require.Len(t, rail.recorded, 1)
	sold := rail.recorded[0]
	require.Equal(t, bob, sold.Owner)
	require.False(t, sold.ForSale)
	require.True(t, sold.Price.IsZero())
	require.Equal(t, uint64(3), sold.Revision)
}

func TestRegistry_Purchase_RecordFailureRollsBack(t *testing.T) {
	rail := &recordingRail{fakeRail: newFakeRail(), recordErr: errors.New("assets table locked")}
	r := New(rail)
	ctx := context.Background()
	id, err := r.Create(ctx, alice, "m")
	require.NoError(t, err)
	require.NoError(t, r.List(ctx, alice, id, amount(100)))
	before, err := r.Get(id)
	require.NoError(t, err)

	_, err = r.Purchase(ctx, bob, id, amount(120))
	require.ErrorIs(t, err, ErrSettlementFailure)

	after, err := r.Get(id)
	require.NoError(t, err)
	require.Equal(t, before, after)
	require.Equal(t, 1, rail.rollbacks)
	require.True(t, rail.credit(alice).IsZero())
	require.Empty(t, rail.recorded)
}
