package models

import "time"

// MembershipStatus is the lifecycle state of a Membership.
type MembershipStatus string

const (
	// StatusPending is the state right after the inviter creates the membership.
	StatusPending MembershipStatus = "pending"
	// StatusActive means the invitee accepted. Only active memberships carry a ledger.
	StatusActive MembershipStatus = "active"
	// StatusRejected means the invitee declined. Terminal.
	StatusRejected MembershipStatus = "rejected"
)

// Valid reports whether s is one of the known statuses.
func (s MembershipStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRejected:
		return true
	}
	return false
}

// Membership identifies a two-party sharing relationship.
//
// The transition out of pending happens once, by the invitee. Re-inviting
// after a rejection requires a new Membership.
type Membership struct {
	// ID is the unique identifier for the membership (UUID format).
	ID string

	// MemberA is the inviter. Fixed at creation.
	MemberA string

	// MemberB is the invitee. Fixed at creation; the only member allowed
	// to accept or reject.
	MemberB string

	// CreatedBy is the user ID who created the membership (always MemberA).
	CreatedBy string

	// Status is the lifecycle state.
	Status MembershipStatus

	// CreatedAt is when the invite was sent.
	CreatedAt time.Time

	// UpdatedAt is when the status last changed.
	UpdatedAt time.Time
}

// HasMember reports whether userID is one of the two members.
func (m *Membership) HasMember(userID string) bool {
	return userID != "" && (userID == m.MemberA || userID == m.MemberB)
}

// Counterparty returns the other member, or "" if userID is not a member.
func (m *Membership) Counterparty(userID string) string {
	switch userID {
	case m.MemberA:
		return m.MemberB
	case m.MemberB:
		return m.MemberA
	}
	return ""
}

// IsActive reports whether the membership accepts entries and settlements.
func (m *Membership) IsActive() bool {
	return m.Status == StatusActive
}
