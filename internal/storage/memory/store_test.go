package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

func newPair(membershipID string, amount int64, at time.Time) [2]*models.LedgerEntry {
	return [2]*models.LedgerEntry{
		{MembershipID: membershipID, OwnerID: "U1", Amount: decimal.NewFromInt(amount), Kind: models.KindDebit,
			Category: models.CategorySettlement, Date: at, CreatedAt: at},
		{MembershipID: membershipID, OwnerID: "U2", Amount: decimal.NewFromInt(amount), Kind: models.KindCredit,
			Category: models.CategorySettlementReceived, Date: at, CreatedAt: at},
	}
}

func newMembership(t *testing.T, s *Store) *models.Membership {
	t.Helper()
	m := &models.Membership{MemberA: "U1", MemberB: "U2", CreatedBy: "U1", Status: models.StatusActive}
	require.NoError(t, s.CreateMembership(context.Background(), m))
	return m
}

func TestStore_ReturnsCopies(t *testing.T) {
	s := New()
	m := newMembership(t, s)

	got, err := s.GetMembership(context.Background(), m.ID)
	require.NoError(t, err)
	got.Status = models.StatusRejected

	again, err := s.GetMembership(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, again.Status)
}

func TestStore_NotFound(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.GetMembership(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteEntry(ctx, "missing"), storage.ErrNotFound)
	assert.ErrorIs(t, s.UpdateEntry(ctx, &models.LedgerEntry{ID: "missing"}), storage.ErrNotFound)
	assert.ErrorIs(t, s.AddEntry(ctx, &models.LedgerEntry{MembershipID: "missing"}), storage.ErrNotFound)
	assert.ErrorIs(t, s.SetMembershipStatus(ctx, "missing", models.StatusPending, models.StatusActive), storage.ErrNotFound)
}

func TestStore_SetMembershipStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := &models.Membership{MemberA: "U1", MemberB: "U2", CreatedBy: "U1", Status: models.StatusPending}
	require.NoError(t, s.CreateMembership(ctx, m))

	require.NoError(t, s.SetMembershipStatus(ctx, m.ID, models.StatusPending, models.StatusActive))
	err := s.SetMembershipStatus(ctx, m.ID, models.StatusPending, models.StatusRejected)
	assert.ErrorIs(t, err, storage.ErrStatusConflict)
}

func TestStore_FindMembershipBetween(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	rejected := &models.Membership{MemberA: "U1", MemberB: "U2", CreatedBy: "U1", Status: models.StatusRejected, CreatedAt: base.Add(time.Hour)}
	older := &models.Membership{MemberA: "U2", MemberB: "U1", CreatedBy: "U2", Status: models.StatusActive, CreatedAt: base}
	require.NoError(t, s.CreateMembership(ctx, rejected))
	require.NoError(t, s.CreateMembership(ctx, older))

	got, err := s.FindMembershipBetween(ctx, "U1", "U2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, older.ID, got.ID)

	none, err := s.FindMembershipBetween(ctx, "U1", "U3")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestStore_WithinTx_StagesUntilCommit(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMembership(t, s)

	err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.AppendEntries(ctx, newPair(m.ID, 10, time.Now())))

		inside, err := tx.ListEntries(ctx, m.ID)
		require.NoError(t, err)
		assert.Len(t, inside, 2)

		// Committed state is untouched until fn returns.
		assert.Empty(t, s.listEntries(m.ID, nil))
		return nil
	})
	require.NoError(t, err)

	entries, err := s.ListEntries(ctx, m.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestStore_WithinTx_RollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMembership(t, s)

	errBoom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.AppendEntries(ctx, newPair(m.ID, 10, time.Now())))
		return errBoom
	})
	assert.ErrorIs(t, err, errBoom)

	entries, err := s.ListEntries(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_WithinTx_CancelledBeforeCommit(t *testing.T) {
	s := New()
	m := newMembership(t, s)

	ctx, cancel := context.WithCancel(context.Background())
	err := s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		require.NoError(t, tx.AppendEntries(ctx, newPair(m.ID, 10, time.Now())))
		cancel()
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	entries, err := s.ListEntries(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_FindRecentSettlement(t *testing.T) {
	s := New()
	ctx := context.Background()
	m := newMembership(t, s)
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.AppendEntries(ctx, newPair(m.ID, 40, at))
	}))

	find := func(payer string, amount string, since time.Time) *models.LedgerEntry {
		var found *models.LedgerEntry
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			var err error
			found, err = tx.FindRecentSettlement(ctx, m.ID, payer, decimal.RequireFromString(amount), since)
			return err
		}))
		return found
	}

	assert.NotNil(t, find("U1", "40.00", at.Add(-time.Minute)))
	assert.NotNil(t, find("U1", "40", at))
	assert.Nil(t, find("U1", "40", at.Add(time.Millisecond)))
	assert.Nil(t, find("U2", "40", at.Add(-time.Minute)))
	assert.Nil(t, find("U1", "41", at.Add(-time.Minute)))
}
