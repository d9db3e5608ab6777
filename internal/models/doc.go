// Package models defines the core domain models for the shared ledger.
//
// # Models
//
//   - Membership: a two-party sharing relationship (invite, accept, reject)
//   - LedgerEntry: one money movement on the shared ledger, owned by one member
//   - Method: how a settlement was paid out of band (UPI, Cash, ...)
//
// Members are identified by opaque user ID strings issued by the identity
// service. The models never hold user profiles.
//
// # Design Principles
//
// 1. **Named roles**: a membership has MemberA (inviter) and MemberB (invitee),
//    fixed at creation and never re-derived from a list position
// 2. **Exact money**: amounts are decimal.Decimal, never float64
// 3. **Avoid circular references**: use ID strings instead of pointers for relationships
// 4. **Settlement entries are immutable**: they only ever appear in pairs written
//    by the settlement coordinator
package models
