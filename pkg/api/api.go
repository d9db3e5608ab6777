// Package api defines the request and response messages of the
// sharedledger.v1 Connect services. Messages are encoded as JSON; amounts are
// decimal strings and timestamps are Unix milliseconds.
package api

import "github.com/shopspring/decimal"

// Membership is a two-party relationship that owns one shared ledger.
type Membership struct {
	ID        string `json:"id"`
	MemberA   string `json:"member_a"`
	MemberB   string `json:"member_b"`
	CreatedBy string `json:"created_by"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

// Entry is one ledger entry.
type Entry struct {
	ID           string          `json:"id"`
	MembershipID string          `json:"membership_id"`
	OwnerID      string          `json:"owner_id"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         string          `json:"kind"`
	Category     string          `json:"category"`
	Note         string          `json:"note,omitempty"`
	Date         int64           `json:"date"`
	CreatedAt    int64           `json:"created_at"`
}

// MemberBalance is one member's side of a Balance.
type MemberBalance struct {
	MemberID        string          `json:"member_id"`
	TotalExpense    decimal.Decimal `json:"total_expense"`
	TotalIncome     decimal.Decimal `json:"total_income"`
	SettledPaid     decimal.Decimal `json:"settled_paid"`
	SettledReceived decimal.Decimal `json:"settled_received"`
	Balance         decimal.Decimal `json:"balance"`
}

// Balance is the derived who-owes-whom report of a membership.
type Balance struct {
	MemberA      MemberBalance   `json:"member_a"`
	MemberB      MemberBalance   `json:"member_b"`
	TotalExpense decimal.Decimal `json:"total_expense"`
	TotalIncome  decimal.Decimal `json:"total_income"`
	FairShare    decimal.Decimal `json:"fair_share"`
	Statement    string          `json:"statement"`
	Settled      bool            `json:"settled"`
	OwedAmount   decimal.Decimal `json:"owed_amount"`
	OwedBy       string          `json:"owed_by,omitempty"`
	OwedTo       string          `json:"owed_to,omitempty"`
}

// MembershipService messages.

type InviteRequest struct {
	InviteeID string `json:"invitee_id"`
}

type RespondRequest struct {
	MembershipID string `json:"membership_id"`
}

type GetMembershipRequest struct {
	MembershipID string `json:"membership_id"`
}

type MembershipResponse struct {
	Membership Membership `json:"membership"`
}

type ListMembershipsRequest struct{}

type ListMembershipsResponse struct {
	Memberships []Membership `json:"memberships"`
}

// LedgerService messages.

type GetBalanceRequest struct {
	MembershipID string `json:"membership_id"`
}

type GetBalanceResponse struct {
	Balance Balance `json:"balance"`
}

type SettleRequest struct {
	MembershipID string          `json:"membership_id"`
	PayerID      string          `json:"payer_id"`
	ReceiverID   string          `json:"receiver_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
}

type SettleResponse struct {
	Message string  `json:"message"`
	Balance Balance `json:"balance"`
	Debit   Entry   `json:"debit"`
	Credit  Entry   `json:"credit"`
}

type AddEntryRequest struct {
	MembershipID string          `json:"membership_id"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         string          `json:"kind"`
	Category     string          `json:"category"`
	Note         string          `json:"note,omitempty"`
	// Date is in Unix milliseconds; 0 means now.
	Date int64 `json:"date,omitempty"`
}

type UpdateEntryRequest struct {
	MembershipID string          `json:"membership_id"`
	EntryID      string          `json:"entry_id"`
	Amount       decimal.Decimal `json:"amount"`
	Kind         string          `json:"kind"`
	Category     string          `json:"category"`
	Note         string          `json:"note,omitempty"`
	// Date is in Unix milliseconds; 0 keeps the current date.
	Date int64 `json:"date,omitempty"`
}

type EntryResponse struct {
	Entry Entry `json:"entry"`
}

type ListEntriesRequest struct {
	MembershipID string `json:"membership_id"`
}

type ListEntriesResponse struct {
	Entries []Entry `json:"entries"`
}

type DeleteEntryRequest struct {
	MembershipID string `json:"membership_id"`
	EntryID      string `json:"entry_id"`
}

type DeleteEntryResponse struct{}
