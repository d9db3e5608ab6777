// Package memory provides an in-memory implementation of storage.Store.
//
// A unit of work holds the store's write lock for its whole duration, so
// units are serialized (single writer). Writes are staged and become visible
// to other readers only on commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// Compile-time check: ensure Store implements storage.Store
var _ storage.Store = (*Store)(nil)

// Store is a thread-safe in-memory ledger store.
type Store struct {
	mu          sync.RWMutex
	memberships map[string]models.Membership
	entries     map[string]models.LedgerEntry
	now         func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		memberships: make(map[string]models.Membership),
		entries:     make(map[string]models.LedgerEntry),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Close is a no-op.
func (s *Store) Close() error { return nil }

func (s *Store) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getMembership(membershipID)
}

func (s *Store) getMembership(membershipID string) (*models.Membership, error) {
	m, ok := s.memberships[membershipID]
	if !ok {
		return nil, fmt.Errorf("membership %s: %w", membershipID, storage.ErrNotFound)
	}
	return &m, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if _, exists := s.memberships[m.ID]; exists {
		return fmt.Errorf("membership %s already exists", m.ID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	s.memberships[m.ID] = *m
	return nil
}

func (s *Store) FindMembershipBetween(ctx context.Context, userA, userB string) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Membership
	for _, m := range s.memberships {
		if m.Status == models.StatusRejected {
			continue
		}
		if !(m.MemberA == userA && m.MemberB == userB) && !(m.MemberA == userB && m.MemberB == userA) {
			continue
		}
		if found == nil || m.CreatedAt.After(found.CreatedAt) {
			m := m
			found = &m
		}
	}
	return found, nil
}

func (s *Store) ListMembershipsByMember(ctx context.Context, userID string) ([]*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Membership
	for _, m := range s.memberships {
		if m.HasMember(userID) {
			m := m
			result = append(result, &m)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) SetMembershipStatus(ctx context.Context, membershipID string, from, to models.MembershipStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.memberships[membershipID]
	if !ok {
		return fmt.Errorf("membership %s: %w", membershipID, storage.ErrNotFound)
	}
	if m.Status != from {
		return storage.ErrStatusConflict
	}
	m.Status = to
	m.UpdatedAt = s.now()
	s.memberships[membershipID] = m
	return nil
}

func (s *Store) AddEntry(ctx context.Context, entry *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.memberships[entry.MembershipID]; !ok {
		return fmt.Errorf("membership %s: %w", entry.MembershipID, storage.ErrNotFound)
	}
	s.fillEntry(entry)
	s.entries[entry.ID] = *entry
	return nil
}

func (s *Store) fillEntry(entry *models.LedgerEntry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	if entry.Date.IsZero() {
		entry.Date = entry.CreatedAt
	}
}

func (s *Store) GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[entryID]
	if !ok {
		return nil, fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	return &e, nil
}

func (s *Store) ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listEntries(membershipID, nil), nil
}

// listEntries returns committed entries of the membership followed by staged ones.
func (s *Store) listEntries(membershipID string, staged []models.LedgerEntry) []*models.LedgerEntry {
	var result []*models.LedgerEntry
	for _, e := range s.entries {
		if e.MembershipID == membershipID {
			e := e
			result = append(result, &e)
		}
	}
	for _, e := range staged {
		if e.MembershipID == membershipID {
			e := e
			result = append(result, &e)
		}
	}
	return result
}

func (s *Store) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entry.ID]
	if !ok {
		return fmt.Errorf("entry %s: %w", entry.ID, storage.ErrNotFound)
	}
	e.Amount = entry.Amount
	e.Kind = entry.Kind
	e.Category = entry.Category
	e.Note = entry.Note
	e.Date = entry.Date
	s.entries[entry.ID] = e
	return nil
}

func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[entryID]; !ok {
		return fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	delete(s.entries, entryID)
	return nil
}

// WithinTx runs fn while holding the write lock. Staged entries are
// committed only if fn returns nil and ctx is still live.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	tx := &memoryTx{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	for _, e := range tx.staged {
		s.entries[e.ID] = e
	}
	return nil
}

// memoryTx reads through to the locked store and stages writes.
type memoryTx struct {
	store  *Store
	staged []models.LedgerEntry
}

func (t *memoryTx) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	return t.store.getMembership(membershipID)
}

func (t *memoryTx) ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error) {
	return t.store.listEntries(membershipID, t.staged), nil
}

func (t *memoryTx) FindRecentSettlement(ctx context.Context, membershipID, payerID string, amount decimal.Decimal, since time.Time) (*models.LedgerEntry, error) {
	var found *models.LedgerEntry
	for _, e := range t.store.listEntries(membershipID, t.staged) {
		if e.OwnerID != payerID || e.Kind != models.KindDebit || e.Category != models.CategorySettlement {
			continue
		}
		if !e.Amount.Equal(amount) || e.CreatedAt.Before(since) {
			continue
		}
		if found == nil || e.CreatedAt.After(found.CreatedAt) {
			found = e
		}
	}
	return found, nil
}

func (t *memoryTx) AppendEntries(ctx context.Context, entries [2]*models.LedgerEntry) error {
	if _, ok := t.store.memberships[entries[0].MembershipID]; !ok {
		return fmt.Errorf("membership %s: %w", entries[0].MembershipID, storage.ErrNotFound)
	}
	for _, e := range entries {
		t.store.fillEntry(e)
		t.staged = append(t.staged, *e)
	}
	return nil
}
