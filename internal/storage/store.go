// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
)

var (
	// ErrNotFound is returned when a membership or entry does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStatusConflict is returned by SetMembershipStatus when the
	// membership is no longer in the expected status.
	ErrStatusConflict = errors.New("membership status changed concurrently")
)

// Reader is the read side shared by the store and a unit of work.
type Reader interface {
	// GetMembership retrieves a membership by ID.
	// Returns ErrNotFound if it does not exist.
	GetMembership(ctx context.Context, membershipID string) (*models.Membership, error)

	// ListEntries returns every ledger entry of a membership, in no
	// particular order.
	ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error)
}

// Tx is one atomic unit of work. Reads observe the writes made earlier in
// the same unit.
type Tx interface {
	Reader

	// FindRecentSettlement returns the most recent Settlement-tagged debit
	// owned by payerID with exactly amount, created at or after since.
	// Returns nil, nil when there is none.
	FindRecentSettlement(ctx context.Context, membershipID, payerID string, amount decimal.Decimal, since time.Time) (*models.LedgerEntry, error)

	// AppendEntries persists a settlement pair. IDs are generated when empty.
	AppendEntries(ctx context.Context, entries [2]*models.LedgerEntry) error
}

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends (SQLite, MongoDB, memory)
// without changing the service layer.
type Store interface {
	Reader

	// WithinTx runs fn inside one atomic unit of work. The unit commits when
	// fn returns nil and rolls back on error, panic, or context expiry.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// CreateMembership persists a new membership.
	// ID, CreatedAt and UpdatedAt are populated by the store when empty.
	CreateMembership(ctx context.Context, m *models.Membership) error

	// FindMembershipBetween returns the most recent non-rejected membership
	// between the two users in either role, or nil, nil if there is none.
	FindMembershipBetween(ctx context.Context, userA, userB string) (*models.Membership, error)

	// ListMembershipsByMember returns the memberships userID belongs to,
	// newest first.
	ListMembershipsByMember(ctx context.Context, userID string) ([]*models.Membership, error)

	// SetMembershipStatus moves a membership from one status to another.
	// Returns ErrNotFound if it does not exist and ErrStatusConflict if its
	// current status is not from.
	SetMembershipStatus(ctx context.Context, membershipID string, from, to models.MembershipStatus) error

	// AddEntry persists an ordinary entry. ID and CreatedAt are populated
	// when empty.
	AddEntry(ctx context.Context, entry *models.LedgerEntry) error

	// GetEntry retrieves an entry by ID. Returns ErrNotFound if it does not exist.
	GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error)

	// UpdateEntry replaces amount, kind, category, note and date of an entry.
	// Returns ErrNotFound if it does not exist.
	UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error

	// DeleteEntry removes an entry by ID. Returns ErrNotFound if it does not exist.
	DeleteEntry(ctx context.Context, entryID string) error

	// Close releases any resources held by the store.
	Close() error
}
