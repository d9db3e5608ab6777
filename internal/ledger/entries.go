package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// EntryInput holds the user-editable fields of an ordinary entry.
type EntryInput struct {
	Amount   decimal.Decimal
	Kind     models.EntryKind
	Category string
	Note     string
	// Date defaults to now when zero.
	Date time.Time
}

func (in *EntryInput) validate() error {
	if !in.Amount.IsPositive() {
		return Errorf(ErrInvalidInput, "amount must be positive")
	}
	if !in.Kind.Valid() {
		return Errorf(ErrInvalidInput, "kind must be %q or %q", models.KindDebit, models.KindCredit)
	}
	in.Category = strings.TrimSpace(in.Category)
	if in.Category == "" {
		return Errorf(ErrInvalidInput, "category is required")
	}
	if models.IsSettlementCategory(in.Category) {
		return Errorf(ErrInvalidInput, "category %q is reserved for settlements", in.Category)
	}
	return nil
}

// Entries manages ordinary entries on a membership's shared ledger.
// Settlement entries are written only by the settlement coordinator.
type Entries struct {
	store storage.Store
	now   func() time.Time
}

// NewEntries creates the entry use cases over store.
func NewEntries(store storage.Store) *Entries {
	return &Entries{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// Add records an ordinary entry owned by requesterID.
func (s *Entries) Add(ctx context.Context, membershipID, requesterID string, in EntryInput) (*models.LedgerEntry, error) {
	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	if err := RequireParticipant(m, requesterID); err != nil {
		return nil, err
	}
	if err := RequireActive(m); err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	date := in.Date
	if date.IsZero() {
		date = now
	}
	entry := &models.LedgerEntry{
		MembershipID: membershipID,
		OwnerID:      requesterID,
		Amount:       in.Amount,
		Kind:         in.Kind,
		Category:     in.Category,
		Note:         in.Note,
		Date:         date,
		CreatedAt:    now,
	}
	if err := s.store.AddEntry(ctx, entry); err != nil {
		return nil, FromStorage(err, "entry")
	}
	return entry, nil
}

// List returns every entry of the membership, newest date first.
func (s *Entries) List(ctx context.Context, membershipID, requesterID string) ([]*models.LedgerEntry, error) {
	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	if err := RequireParticipant(m, requesterID); err != nil {
		return nil, err
	}

	entries, err := s.store.ListEntries(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "entries")
	}
	SortForDisplay(entries)
	return entries, nil
}

// Update edits an ordinary entry owned by requesterID.
func (s *Entries) Update(ctx context.Context, membershipID, entryID, requesterID string, in EntryInput) (*models.LedgerEntry, error) {
	entry, err := s.editable(ctx, membershipID, entryID, requesterID)
	if err != nil {
		return nil, err
	}
	if err := in.validate(); err != nil {
		return nil, err
	}

	entry.Amount = in.Amount
	entry.Kind = in.Kind
	entry.Category = in.Category
	entry.Note = in.Note
	if !in.Date.IsZero() {
		entry.Date = in.Date
	}
	if err := s.store.UpdateEntry(ctx, entry); err != nil {
		return nil, FromStorage(err, "entry")
	}
	return entry, nil
}

// Delete removes an ordinary entry owned by requesterID.
func (s *Entries) Delete(ctx context.Context, membershipID, entryID, requesterID string) error {
	if _, err := s.editable(ctx, membershipID, entryID, requesterID); err != nil {
		return err
	}
	return FromStorage(s.store.DeleteEntry(ctx, entryID), "entry")
}

func (s *Entries) editable(ctx context.Context, membershipID, entryID, requesterID string) (*models.LedgerEntry, error) {
	entry, err := s.store.GetEntry(ctx, entryID)
	if err != nil {
		return nil, FromStorage(err, "entry")
	}
	if entry.MembershipID != membershipID {
		return nil, Errorf(ErrNotFound, "entry not found")
	}
	if entry.OwnerID != requesterID {
		return nil, Errorf(ErrUnauthorized, "you can only change your own entries")
	}
	if entry.IsSettlement() {
		return nil, Errorf(ErrInvalidState, "settlement entries cannot be changed")
	}
	return entry, nil
}

// SortForDisplay orders entries by date, then creation time, newest first.
func SortForDisplay(entries []*models.LedgerEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.After(entries[j].Date)
		}
		return entries[i].CreatedAt.After(entries[j].CreatedAt)
	})
}
