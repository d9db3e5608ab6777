package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/storage"
	"github.com/mmynk/sharedledger/pkg/api"
	"github.com/mmynk/sharedledger/pkg/api/apiconnect"
)

var _ apiconnect.MembershipServiceHandler = (*MembershipService)(nil)

// MembershipService implements the Connect MembershipService.
type MembershipService struct {
	memberships *ledger.Memberships
}

// NewMembershipService creates a new MembershipService with the given storage backend.
func NewMembershipService(store storage.Store) *MembershipService {
	return &MembershipService{memberships: ledger.NewMemberships(store)}
}

// Invite creates a pending membership from the caller to the invitee.
func (s *MembershipService) Invite(ctx context.Context, req *connect.Request[api.InviteRequest]) (*connect.Response[api.MembershipResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Invite request received", "inviter_id", userID, "invitee_id", req.Msg.InviteeID)

	m, err := s.memberships.Invite(ctx, userID, req.Msg.InviteeID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Info("Invitation sent", "membership_id", m.ID)
	return connect.NewResponse(&api.MembershipResponse{Membership: toAPIMembership(m)}), nil
}

// Accept activates a pending invitation addressed to the caller.
func (s *MembershipService) Accept(ctx context.Context, req *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.Accept(ctx, req.Msg.MembershipID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Info("Invitation accepted", "membership_id", m.ID, "user_id", userID)
	return connect.NewResponse(&api.MembershipResponse{Membership: toAPIMembership(m)}), nil
}

// Reject declines a pending invitation addressed to the caller.
func (s *MembershipService) Reject(ctx context.Context, req *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.Reject(ctx, req.Msg.MembershipID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Info("Invitation rejected", "membership_id", m.ID, "user_id", userID)
	return connect.NewResponse(&api.MembershipResponse{Membership: toAPIMembership(m)}), nil
}

// GetMembership returns one of the caller's memberships.
func (s *MembershipService) GetMembership(ctx context.Context, req *connect.Request[api.GetMembershipRequest]) (*connect.Response[api.MembershipResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	m, err := s.memberships.Get(ctx, req.Msg.MembershipID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}
	return connect.NewResponse(&api.MembershipResponse{Membership: toAPIMembership(m)}), nil
}

// ListMemberships returns every membership of the caller, newest first.
func (s *MembershipService) ListMemberships(ctx context.Context, req *connect.Request[api.ListMembershipsRequest]) (*connect.Response[api.ListMembershipsResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	list, err := s.memberships.List(ctx, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ListMembershipsResponse{Memberships: make([]api.Membership, 0, len(list))}
	for _, m := range list {
		resp.Memberships = append(resp.Memberships, toAPIMembership(m))
	}
	return connect.NewResponse(resp), nil
}
