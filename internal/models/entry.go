package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryKind says which way money moved for the owning member.
type EntryKind string

const (
	// KindDebit is money this member paid out.
	KindDebit EntryKind = "debit"
	// KindCredit is money this member received.
	KindCredit EntryKind = "credit"
)

// Valid reports whether k is debit or credit.
func (k EntryKind) Valid() bool {
	return k == KindDebit || k == KindCredit
}

// Reserved categories written only by the settlement coordinator.
const (
	CategorySettlement         = "Settlement"
	CategorySettlementReceived = "Settlement Received"
)

// IsSettlementCategory reports whether category is one of the reserved
// settlement tags.
func IsSettlementCategory(category string) bool {
	return category == CategorySettlement || category == CategorySettlementReceived
}

// LedgerEntry is one shared-ledger line item, owned by exactly one member.
type LedgerEntry struct {
	// ID is the unique identifier for the entry (UUID format).
	ID string

	// MembershipID is the membership whose ledger holds this entry.
	MembershipID string

	// OwnerID is the member who recorded the entry. Always one of the
	// membership's two members.
	OwnerID string

	// Amount is the magnitude, always > 0. The sign is carried by Kind.
	Amount decimal.Decimal

	// Kind is debit (paid out) or credit (received).
	Kind EntryKind

	// Category is a free-text tag. Settlement and Settlement Received are reserved.
	Category string

	// Note is an optional description.
	Note string

	// Date is when the money actually moved.
	Date time.Time

	// CreatedAt is when the entry was recorded. Both entries of a settlement
	// pair share the same CreatedAt.
	CreatedAt time.Time
}

// IsSettlement reports whether the entry was produced by the settlement protocol.
func (e *LedgerEntry) IsSettlement() bool {
	return IsSettlementCategory(e.Category)
}
