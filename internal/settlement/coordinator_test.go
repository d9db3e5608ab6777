package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/metrics"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
	"github.com/mmynk/sharedledger/internal/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	keys   []string
	events []any
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	p.events = append(p.events, event)
	return p.err
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// setup creates an active membership between U1 and U2.
func setup(t *testing.T) (*memory.Store, *models.Membership) {
	t.Helper()
	store := memory.New()
	m := &models.Membership{MemberA: "U1", MemberB: "U2", CreatedBy: "U1", Status: models.StatusActive}
	require.NoError(t, store.CreateMembership(context.Background(), m))
	return store, m
}

func addEntry(t *testing.T, store storage.Store, membershipID, owner string, kind models.EntryKind, amount string) {
	t.Helper()
	require.NoError(t, store.AddEntry(context.Background(), &models.LedgerEntry{
		MembershipID: membershipID,
		OwnerID:      owner,
		Amount:       dec(amount),
		Kind:         kind,
		Category:     "Food",
		Date:         time.Now().UTC(),
	}))
}

func countEntries(t *testing.T, store storage.Store, membershipID string) int {
	t.Helper()
	entries, err := store.ListEntries(context.Background(), membershipID)
	require.NoError(t, err)
	return len(entries)
}

func TestSettle_ClearsBalance(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	clock := newFakeClock()
	pub := &recordingPublisher{}
	c := New(store, WithClock(clock.Now), WithPublisher(pub))

	before, err := ledger.NewBalances(store, nil).Get(context.Background(), m.ID, "U1")
	require.NoError(t, err)
	require.Equal(t, "U1", before.OwedBy)
	require.True(t, before.OwedAmount.Equal(dec("50")))

	res, err := c.Settle(context.Background(), Request{
		MembershipID: m.ID,
		RequesterID:  "U1",
		PayerID:      "U1",
		ReceiverID:   "U2",
		Amount:       dec("50"),
		Method:       "UPI",
	})
	require.NoError(t, err)

	assert.True(t, res.Report.Settled)
	assert.Equal(t, balance.SettledStatement, res.Report.Statement)
	assert.Empty(t, res.Report.OwedBy)
	assert.True(t, res.Report.OwedAmount.IsZero())

	debit, credit := res.Entries[0], res.Entries[1]
	assert.NotEmpty(t, debit.ID)
	assert.NotEmpty(t, credit.ID)
	assert.Equal(t, "U1", debit.OwnerID)
	assert.Equal(t, models.KindDebit, debit.Kind)
	assert.Equal(t, models.CategorySettlement, debit.Category)
	assert.Equal(t, "Settlement payment via UPI", debit.Note)
	assert.Equal(t, "U2", credit.OwnerID)
	assert.Equal(t, models.KindCredit, credit.Kind)
	assert.Equal(t, models.CategorySettlementReceived, credit.Category)
	assert.Equal(t, "Settlement received via UPI", credit.Note)
	assert.True(t, debit.CreatedAt.Equal(credit.CreatedAt))
	assert.True(t, debit.CreatedAt.Equal(clock.Now()))

	assert.Equal(t, 3, countEntries(t, store, m.ID))

	// The returned report matches a fresh query.
	after, err := ledger.NewBalances(store, nil).Get(context.Background(), m.ID, "U2")
	require.NoError(t, err)
	assert.Equal(t, res.Report.Statement, after.Statement)
	assert.True(t, after.MemberA.Balance.Equal(res.Report.MemberA.Balance))

	require.Len(t, pub.events, 1)
	assert.Equal(t, m.ID, pub.keys[0])
}

func TestSettle_PartialPayment(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	res, err := New(store).Settle(context.Background(), Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("20"), Method: "Cash",
	})
	require.NoError(t, err)

	assert.False(t, res.Report.Settled)
	assert.Equal(t, "U1", res.Report.OwedBy)
	assert.Equal(t, "U2", res.Report.OwedTo)
	assert.True(t, res.Report.OwedAmount.Equal(dec("30")))
	assert.Equal(t, "U1 pays U2 ₹30.00", res.Report.Statement)
	// Settlements never move the fair share.
	assert.True(t, res.Report.FairShare.Equal(dec("50")))
}

func TestSettle_Validation(t *testing.T) {
	store, m := setup(t)
	pending := &models.Membership{MemberA: "U1", MemberB: "U3", CreatedBy: "U1", Status: models.StatusPending}
	require.NoError(t, store.CreateMembership(context.Background(), pending))

	valid := Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("10"), Method: "UPI",
	}

	tests := []struct {
		name   string
		modify func(r *Request)
		want   error
	}{
		{"zero amount", func(r *Request) { r.Amount = decimal.Zero }, ledger.ErrInvalidInput},
		{"negative amount", func(r *Request) { r.Amount = dec("-5") }, ledger.ErrInvalidInput},
		{"missing payer", func(r *Request) { r.PayerID = "" }, ledger.ErrInvalidInput},
		{"missing method", func(r *Request) { r.Method = "" }, ledger.ErrInvalidInput},
		{"unknown method", func(r *Request) { r.Method = "Cheque" }, ledger.ErrInvalidInput},
		{"method is case sensitive", func(r *Request) { r.Method = "upi" }, ledger.ErrInvalidInput},
		{"unknown membership", func(r *Request) { r.MembershipID = "missing" }, ledger.ErrNotFound},
		{"pending membership", func(r *Request) {
			r.MembershipID = pending.ID
			r.ReceiverID = "U3"
		}, ledger.ErrInvalidState},
		{"requester is not payer", func(r *Request) { r.RequesterID = "U2" }, ledger.ErrUnauthorized},
		{"stranger receiver", func(r *Request) { r.ReceiverID = "U9" }, ledger.ErrInvalidInput},
		{"stranger pays on own behalf", func(r *Request) {
			r.PayerID = "U9"
			r.RequesterID = "U9"
		}, ledger.ErrUnauthorized},
		{"stranger requester for member payer", func(r *Request) { r.RequesterID = "U9" }, ledger.ErrUnauthorized},
		{"self payment", func(r *Request) { r.ReceiverID = "U1" }, ledger.ErrInvalidInput},
		// Amount is checked before membership state.
		{"bad amount on pending membership", func(r *Request) {
			r.MembershipID = pending.ID
			r.Amount = decimal.Zero
		}, ledger.ErrInvalidInput},
		// Membership state is checked before the requester.
		{"pending membership wrong requester", func(r *Request) {
			r.MembershipID = pending.ID
			r.RequesterID = "U3"
		}, ledger.ErrInvalidState},
	}

	c := New(store)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			tt.modify(&req)
			res, err := c.Settle(context.Background(), req)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	assert.Zero(t, countEntries(t, store, m.ID))
	assert.Zero(t, countEntries(t, store, pending.ID))
}

func TestSettle_DuplicateWithinWindow(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	clock := newFakeClock()
	c := New(store, WithClock(clock.Now), WithWindow(time.Minute))
	req := Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("20"), Method: "UPI",
	}

	_, err := c.Settle(context.Background(), req)
	require.NoError(t, err)

	clock.Advance(30 * time.Second)
	_, err = c.Settle(context.Background(), req)
	require.ErrorIs(t, err, ledger.ErrDuplicateSettlement)
	assert.Contains(t, err.Error(), "please wait before trying again")
	assert.Equal(t, 3, countEntries(t, store, m.ID))

	// A different amount is not a duplicate.
	other := req
	other.Amount = dec("20.01")
	_, err = c.Settle(context.Background(), other)
	require.NoError(t, err)
	assert.Equal(t, 5, countEntries(t, store, m.ID))

	// Equal amounts compare by value, not representation.
	same := req
	same.Amount = dec("20.00")
	_, err = c.Settle(context.Background(), same)
	require.ErrorIs(t, err, ledger.ErrDuplicateSettlement)
}

func TestSettle_AllowedAfterWindow(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	clock := newFakeClock()
	c := New(store, WithClock(clock.Now), WithWindow(time.Minute))
	req := Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("20"), Method: "UPI",
	}

	_, err := c.Settle(context.Background(), req)
	require.NoError(t, err)

	clock.Advance(61 * time.Second)
	res, err := c.Settle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Report.OwedAmount.Equal(dec("10")))
	assert.Equal(t, 5, countEntries(t, store, m.ID))
}

func TestSettle_ConcurrentDuplicates(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	c := New(store)
	req := Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("50"), Method: "UPI",
	}

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Settle(context.Background(), req)
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ledger.ErrDuplicateSettlement):
			dup++
		default:
			assert.Failf(t, "unexpected error", "%v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dup)
	assert.Equal(t, 3, countEntries(t, store, m.ID))
}

// failingStore wraps every unit of work so that the second write fails.
type failingStore struct {
	*memory.Store
}

func (s failingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	return s.Store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return fn(ctx, failingTx{tx})
	})
}

type failingTx struct {
	storage.Tx
}

func (t failingTx) AppendEntries(ctx context.Context, entries [2]*models.LedgerEntry) error {
	if err := t.Tx.AppendEntries(ctx, entries); err != nil {
		return err
	}
	return errors.New("disk I/O error")
}

func TestSettle_RollsBackOnFailure(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	pub := &recordingPublisher{}
	c := New(failingStore{store}, WithPublisher(pub))

	res, err := c.Settle(context.Background(), Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("50"), Method: "UPI",
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)
	assert.Nil(t, res)
	assert.Equal(t, 1, countEntries(t, store, m.ID))
	assert.Empty(t, pub.events)

	report, err := ledger.NewBalances(store, nil).Get(context.Background(), m.ID, "U1")
	require.NoError(t, err)
	assert.True(t, report.OwedAmount.Equal(dec("50")))
}

func TestSettle_CancelledContext(t *testing.T) {
	store, m := setup(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(store).Settle(ctx, Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("50"), Method: "UPI",
	})
	require.ErrorIs(t, err, ledger.ErrPersistence)
	assert.Zero(t, countEntries(t, store, m.ID))
}

func TestSettle_PublishFailureDoesNotFail(t *testing.T) {
	store, m := setup(t)
	addEntry(t, store, m.ID, "U2", models.KindDebit, "100")

	pub := &recordingPublisher{err: errors.New("broker down")}
	res, err := New(store, WithPublisher(pub)).Settle(context.Background(), Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("50"), Method: "UPI",
	})
	require.NoError(t, err)
	assert.True(t, res.Report.Settled)
	assert.Len(t, pub.events, 1)
}

func TestSettle_CustomMethods(t *testing.T) {
	store, m := setup(t)
	methods, err := models.ParseMethodList("UPI,Cash,BankTransfer")
	require.NoError(t, err)

	_, err = New(store, WithMethods(methods)).Settle(context.Background(), Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("5"), Method: "BankTransfer",
	})
	require.NoError(t, err)
}

func TestSettle_Metrics(t *testing.T) {
	store, m := setup(t)
	reg := prometheus.NewRegistry()
	met := metrics.NewWithRegistry(reg, reg)

	c := New(store, WithMetrics(met))
	req := Request{
		MembershipID: m.ID, RequesterID: "U1", PayerID: "U1", ReceiverID: "U2",
		Amount: dec("5"), Method: "UPI",
	}
	_, err := c.Settle(context.Background(), req)
	require.NoError(t, err)
	_, err = c.Settle(context.Background(), req)
	require.ErrorIs(t, err, ledger.ErrDuplicateSettlement)
	req.Method = "Cheque"
	_, err = c.Settle(context.Background(), req)
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	count, err := testutil.GatherAndCount(reg, "ledger_settlements_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
