package ledger

import (
	"context"

	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// Balances answers plain balance queries. It takes no lock: the report
// reflects whatever snapshot the store returns.
type Balances struct {
	store      storage.Reader
	calculator *balance.Calculator
}

// NewBalances creates a balance query over store. A nil calculator uses the
// default currency.
func NewBalances(store storage.Reader, calculator *balance.Calculator) *Balances {
	if calculator == nil {
		calculator = &balance.Calculator{}
	}
	return &Balances{store: store, calculator: calculator}
}

// Get computes the current balance of a membership for one of its members.
func (b *Balances) Get(ctx context.Context, membershipID, requesterID string) (*balance.Report, error) {
	m, err := b.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	if err := RequireParticipant(m, requesterID); err != nil {
		return nil, err
	}
	if err := RequireActive(m); err != nil {
		return nil, err
	}

	entries, err := b.store.ListEntries(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "entries")
	}
	return b.calculator.Compute(m.MemberA, m.MemberB, entries), nil
}

// RequireParticipant fails with ErrUnauthorized unless userID is a member of m.
func RequireParticipant(m *models.Membership, userID string) error {
	if !m.HasMember(userID) {
		return Errorf(ErrUnauthorized, "you are not part of this membership")
	}
	return nil
}

// RequireActive fails with ErrInvalidState unless m is active.
func RequireActive(m *models.Membership) error {
	if !m.IsActive() {
		return Errorf(ErrInvalidState, "membership is not active")
	}
	return nil
}
