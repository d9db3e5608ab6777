package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/auth"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/middleware"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/settlement"
	"github.com/mmynk/sharedledger/internal/storage"
	"github.com/mmynk/sharedledger/internal/storage/sqlite"
	"github.com/mmynk/sharedledger/pkg/api"
	"github.com/mmynk/sharedledger/pkg/api/apiconnect"
)

type testServer struct {
	memberships apiconnect.MembershipServiceClient
	ledger      apiconnect.LedgerServiceClient
	tokens      map[string]string
}

func openStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to create store")
	t.Cleanup(func() { store.Close() })
	return store
}

// setupTestServer serves both services over a temp SQLite database behind
// the auth interceptor.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServer(t, openStore(t))
}

func newTestServer(t *testing.T, store storage.Store) *testServer {
	t.Helper()

	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	interceptors := connect.WithInterceptors(middleware.LoggingInterceptor(), middleware.RequireAuth(jwtManager))

	mux := http.NewServeMux()
	path, handler := apiconnect.NewMembershipServiceHandler(NewMembershipService(store), interceptors)
	mux.Handle(path, handler)
	path, handler = apiconnect.NewLedgerServiceHandler(NewLedgerService(store, settlement.New(store), nil, nil), interceptors)
	mux.Handle(path, handler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	ts := &testServer{
		memberships: apiconnect.NewMembershipServiceClient(http.DefaultClient, server.URL),
		ledger:      apiconnect.NewLedgerServiceClient(http.DefaultClient, server.URL),
		tokens:      make(map[string]string),
	}
	for _, user := range []string{"U1", "U2", "U3"} {
		token, err := jwtManager.Generate(user)
		require.NoError(t, err, "failed to generate token")
		ts.tokens[user] = token
	}
	return ts
}

// as builds a request authenticated as user.
func as[T any](ts *testServer, user string, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set("Authorization", "Bearer "+ts.tokens[user])
	return req
}

// activeMembership invites U2 as U1 and accepts as U2.
func activeMembership(t *testing.T, ts *testServer) api.Membership {
	t.Helper()
	ctx := context.Background()

	invited, err := ts.memberships.Invite(ctx, as(ts, "U1", &api.InviteRequest{InviteeID: "U2"}))
	require.NoError(t, err, "Invite failed")
	accepted, err := ts.memberships.Accept(ctx, as(ts, "U2", &api.RespondRequest{MembershipID: invited.Msg.Membership.ID}))
	require.NoError(t, err, "Accept failed")
	return accepted.Msg.Membership
}

func requireCode(t *testing.T, err error, want connect.Code) {
	t.Helper()
	require.Error(t, err, "expected %s error", want)
	assert.Equal(t, want, connect.CodeOf(err), "unexpected code for %v", err)
}

// lockedBuffer is a log sink that is safe to write from server goroutines.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// captureLogs routes the default slog logger into a buffer for the test.
func captureLogs(t *testing.T) *lockedBuffer {
	t.Helper()

	buf := &lockedBuffer{}
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return buf
}

// brokenEntriesStore fails every entry listing outside a unit of work.
type brokenEntriesStore struct {
	storage.Store
}

func (brokenEntriesStore) ListEntries(context.Context, string) ([]*models.LedgerEntry, error) {
	return nil, errors.New("disk I/O error")
}

func TestSettleFlow(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	m := activeMembership(t, ts)

	require.Equal(t, "active", m.Status)

	_, err := ts.ledger.AddEntry(ctx, as(ts, "U2", &api.AddEntryRequest{
		MembershipID: m.ID,
		Amount:       decimal.NewFromInt(100),
		Kind:         "debit",
		Category:     "Groceries",
	}))
	require.NoError(t, err, "AddEntry failed")

	bal, err := ts.ledger.GetBalance(ctx, as(ts, "U1", &api.GetBalanceRequest{MembershipID: m.ID}))
	require.NoError(t, err, "GetBalance failed")
	assert.Equal(t, "U1 pays U2 ₹50.00", bal.Msg.Balance.Statement)
	assert.Equal(t, "U1", bal.Msg.Balance.OwedBy)
	assert.True(t, bal.Msg.Balance.OwedAmount.Equal(decimal.NewFromInt(50)), "owed amount %s", bal.Msg.Balance.OwedAmount)

	settle := &api.SettleRequest{
		MembershipID: m.ID,
		PayerID:      "U1",
		ReceiverID:   "U2",
		Amount:       decimal.NewFromInt(50),
		Method:       "UPI",
	}

	// Only the payer may record a payment.
	_, err = ts.ledger.Settle(ctx, as(ts, "U2", settle))
	requireCode(t, err, connect.CodePermissionDenied)

	resp, err := ts.ledger.Settle(ctx, as(ts, "U1", settle))
	require.NoError(t, err, "Settle failed")
	assert.True(t, resp.Msg.Balance.Settled)
	assert.Equal(t, "Both are settled", resp.Msg.Balance.Statement)
	assert.Equal(t, "Settlement", resp.Msg.Debit.Category)
	assert.Equal(t, "Settlement Received", resp.Msg.Credit.Category)
	assert.Equal(t, "Settlement payment via UPI", resp.Msg.Debit.Note)

	_, err = ts.ledger.Settle(ctx, as(ts, "U1", settle))
	requireCode(t, err, connect.CodeAlreadyExists)
	var connectErr *connect.Error
	require.ErrorAs(t, err, &connectErr)
	assert.Contains(t, connectErr.Message(), "please wait before trying again")

	entries, err := ts.ledger.ListEntries(ctx, as(ts, "U2", &api.ListEntriesRequest{MembershipID: m.ID}))
	require.NoError(t, err, "ListEntries failed")
	assert.Len(t, entries.Msg.Entries, 3)

	// Settlement entries cannot be edited through the entry API.
	_, err = ts.ledger.DeleteEntry(ctx, as(ts, "U1", &api.DeleteEntryRequest{MembershipID: m.ID, EntryID: resp.Msg.Debit.ID}))
	requireCode(t, err, connect.CodeFailedPrecondition)
}

func TestSettleErrors(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	m := activeMembership(t, ts)

	pending, err := ts.memberships.Invite(ctx, as(ts, "U1", &api.InviteRequest{InviteeID: "U3"}))
	require.NoError(t, err, "Invite failed")

	tests := []struct {
		name string
		user string
		req  *api.SettleRequest
		want connect.Code
	}{
		{"unknown method", "U1", &api.SettleRequest{MembershipID: m.ID, PayerID: "U1", ReceiverID: "U2", Amount: decimal.NewFromInt(5), Method: "Cheque"}, connect.CodeInvalidArgument},
		{"non-positive amount", "U1", &api.SettleRequest{MembershipID: m.ID, PayerID: "U1", ReceiverID: "U2", Amount: decimal.Zero, Method: "UPI"}, connect.CodeInvalidArgument},
		{"unknown membership", "U1", &api.SettleRequest{MembershipID: "missing", PayerID: "U1", ReceiverID: "U2", Amount: decimal.NewFromInt(5), Method: "UPI"}, connect.CodeNotFound},
		{"pending membership", "U1", &api.SettleRequest{MembershipID: pending.Msg.Membership.ID, PayerID: "U1", ReceiverID: "U3", Amount: decimal.NewFromInt(5), Method: "UPI"}, connect.CodeFailedPrecondition},
		{"stranger receiver", "U1", &api.SettleRequest{MembershipID: m.ID, PayerID: "U1", ReceiverID: "U3", Amount: decimal.NewFromInt(5), Method: "UPI"}, connect.CodeInvalidArgument},
		{"stranger pays on own behalf", "U3", &api.SettleRequest{MembershipID: m.ID, PayerID: "U3", ReceiverID: "U2", Amount: decimal.NewFromInt(5), Method: "UPI"}, connect.CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ts.ledger.Settle(ctx, as(ts, tt.user, tt.req))
			requireCode(t, err, tt.want)
		})
	}
}

func TestAuthRequired(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()

	_, err := ts.ledger.GetBalance(ctx, connect.NewRequest(&api.GetBalanceRequest{MembershipID: "x"}))
	requireCode(t, err, connect.CodeUnauthenticated)

	req := connect.NewRequest(&api.ListMembershipsRequest{})
	req.Header().Set("Authorization", "Bearer not-a-token")
	_, err = ts.memberships.ListMemberships(ctx, req)
	requireCode(t, err, connect.CodeUnauthenticated)
}

func TestMembershipAccess(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	m := activeMembership(t, ts)

	_, err := ts.ledger.GetBalance(ctx, as(ts, "U3", &api.GetBalanceRequest{MembershipID: m.ID}))
	requireCode(t, err, connect.CodePermissionDenied)

	_, err = ts.memberships.GetMembership(ctx, as(ts, "U3", &api.GetMembershipRequest{MembershipID: m.ID}))
	requireCode(t, err, connect.CodePermissionDenied)

	_, err = ts.memberships.Invite(ctx, as(ts, "U2", &api.InviteRequest{InviteeID: "U1"}))
	requireCode(t, err, connect.CodeFailedPrecondition)

	_, err = ts.memberships.Reject(ctx, as(ts, "U2", &api.RespondRequest{MembershipID: m.ID}))
	requireCode(t, err, connect.CodeFailedPrecondition)

	list, err := ts.memberships.ListMemberships(ctx, as(ts, "U1", &api.ListMembershipsRequest{}))
	require.NoError(t, err, "ListMemberships failed")
	require.Len(t, list.Msg.Memberships, 1)
	assert.Equal(t, m.ID, list.Msg.Memberships[0].ID)
}

func TestEntryLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	ctx := context.Background()
	m := activeMembership(t, ts)

	added, err := ts.ledger.AddEntry(ctx, as(ts, "U1", &api.AddEntryRequest{
		MembershipID: m.ID,
		Amount:       decimal.RequireFromString("12.34"),
		Kind:         "debit",
		Category:     "Food",
		Note:         "lunch",
		Date:         time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
	}))
	require.NoError(t, err, "AddEntry failed")
	entry := added.Msg.Entry
	assert.Equal(t, "U1", entry.OwnerID)
	assert.True(t, entry.Amount.Equal(decimal.RequireFromString("12.34")), "amount %s", entry.Amount)

	_, err = ts.ledger.AddEntry(ctx, as(ts, "U1", &api.AddEntryRequest{
		MembershipID: m.ID, Amount: decimal.NewFromInt(1), Kind: "debit", Category: "Settlement",
	}))
	requireCode(t, err, connect.CodeInvalidArgument)

	_, err = ts.ledger.UpdateEntry(ctx, as(ts, "U2", &api.UpdateEntryRequest{
		MembershipID: m.ID, EntryID: entry.ID, Amount: decimal.NewFromInt(1), Kind: "debit", Category: "Food",
	}))
	requireCode(t, err, connect.CodePermissionDenied)

	updated, err := ts.ledger.UpdateEntry(ctx, as(ts, "U1", &api.UpdateEntryRequest{
		MembershipID: m.ID, EntryID: entry.ID, Amount: decimal.NewFromInt(20), Kind: "credit", Category: "Refund",
	}))
	require.NoError(t, err, "UpdateEntry failed")
	assert.Equal(t, "credit", updated.Msg.Entry.Kind)
	assert.Equal(t, entry.Date, updated.Msg.Entry.Date)

	_, err = ts.ledger.DeleteEntry(ctx, as(ts, "U1", &api.DeleteEntryRequest{MembershipID: m.ID, EntryID: entry.ID}))
	require.NoError(t, err, "DeleteEntry failed")
	_, err = ts.ledger.DeleteEntry(ctx, as(ts, "U1", &api.DeleteEntryRequest{MembershipID: m.ID, EntryID: entry.ID}))
	requireCode(t, err, connect.CodeNotFound)
}

func TestStorageFailureIsLoggedNotLeaked(t *testing.T) {
	ts := newTestServer(t, brokenEntriesStore{Store: openStore(t)})
	m := activeMembership(t, ts)
	logs := captureLogs(t)

	_, err := ts.ledger.GetBalance(context.Background(), as(ts, "U1", &api.GetBalanceRequest{MembershipID: m.ID}))
	requireCode(t, err, connect.CodeInternal)

	var connectErr *connect.Error
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, "internal error, please try again", connectErr.Message())
	assert.NotContains(t, connectErr.Message(), "disk")

	out := logs.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, apiconnect.LedgerServiceGetBalanceProcedure)
	assert.Contains(t, out, "disk I/O error")
}

func TestToConnectErrorHidesPersistenceCause(t *testing.T) {
	cause := errors.New("disk I/O error at /var/lib/ledger.db")
	err := toConnectError(ledger.FromStorage(cause, "settlement"))

	var connectErr *connect.Error
	require.ErrorAs(t, err, &connectErr)
	assert.Equal(t, connect.CodeInternal, connectErr.Code())
	assert.NotContains(t, connectErr.Message(), "disk", "cause leaked to client")
	assert.ErrorIs(t, err, cause, "cause should stay reachable for logging")

	msg := toConnectError(ledger.Errorf(ledger.ErrInvalidInput, "invalid payment method"))
	require.ErrorAs(t, msg, &connectErr)
	assert.Equal(t, "invalid payment method", connectErr.Message())
}
