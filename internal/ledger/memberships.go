package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

// Memberships runs the invite / accept / reject workflow.
type Memberships struct {
	store storage.Store
}

// NewMemberships creates the workflow over store.
func NewMemberships(store storage.Store) *Memberships {
	return &Memberships{store: store}
}

// Invite creates a pending membership with inviterID as MemberA and
// inviteeID as MemberB.
func (s *Memberships) Invite(ctx context.Context, inviterID, inviteeID string) (*models.Membership, error) {
	inviterID, inviteeID = strings.TrimSpace(inviterID), strings.TrimSpace(inviteeID)
	if inviterID == "" || inviteeID == "" {
		return nil, Errorf(ErrInvalidInput, "invitee is required")
	}
	if inviterID == inviteeID {
		return nil, Errorf(ErrInvalidInput, "you cannot invite yourself")
	}

	existing, err := s.store.FindMembershipBetween(ctx, inviterID, inviteeID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	if existing != nil {
		if existing.Status == models.StatusPending {
			return nil, Errorf(ErrInvalidState, "invitation already sent to this user")
		}
		return nil, Errorf(ErrInvalidState, "membership already exists with this user")
	}

	m := &models.Membership{
		MemberA:   inviterID,
		MemberB:   inviteeID,
		CreatedBy: inviterID,
		Status:    models.StatusPending,
	}
	if err := s.store.CreateMembership(ctx, m); err != nil {
		return nil, FromStorage(err, "membership")
	}
	return m, nil
}

// Accept activates a pending membership. Only the invitee may accept.
func (s *Memberships) Accept(ctx context.Context, membershipID, requesterID string) (*models.Membership, error) {
	return s.respond(ctx, membershipID, requesterID, models.StatusActive)
}

// Reject declines a pending membership. Only the invitee may reject.
func (s *Memberships) Reject(ctx context.Context, membershipID, requesterID string) (*models.Membership, error) {
	return s.respond(ctx, membershipID, requesterID, models.StatusRejected)
}

func (s *Memberships) respond(ctx context.Context, membershipID, requesterID string, to models.MembershipStatus) (*models.Membership, error) {
	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	if requesterID == "" || m.MemberB != requesterID {
		return nil, Errorf(ErrUnauthorized, "only the invited user can respond to this invitation")
	}
	if m.Status != models.StatusPending {
		return nil, Errorf(ErrInvalidState, "this invitation has already been processed")
	}

	err = s.store.SetMembershipStatus(ctx, membershipID, models.StatusPending, to)
	if errors.Is(err, storage.ErrStatusConflict) {
		return nil, Errorf(ErrInvalidState, "this invitation has already been processed")
	}
	if err != nil {
		return nil, FromStorage(err, "membership")
	}

	updated, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	return updated, nil
}

// Get returns a membership to one of its members.
func (s *Memberships) Get(ctx context.Context, membershipID, requesterID string) (*models.Membership, error) {
	m, err := s.store.GetMembership(ctx, membershipID)
	if err != nil {
		return nil, FromStorage(err, "membership")
	}
	if err := RequireParticipant(m, requesterID); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the memberships of userID, newest first.
func (s *Memberships) List(ctx context.Context, userID string) ([]*models.Membership, error) {
	memberships, err := s.store.ListMembershipsByMember(ctx, userID)
	if err != nil {
		return nil, FromStorage(err, "memberships")
	}
	return memberships, nil
}
