package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/pkg/api"
)

// MembershipServiceName is the fully-qualified name of the MembershipService.
const MembershipServiceName = "sharedledger.v1.MembershipService"

const (
	MembershipServiceInviteProcedure          = "/sharedledger.v1.MembershipService/Invite"
	MembershipServiceAcceptProcedure          = "/sharedledger.v1.MembershipService/Accept"
	MembershipServiceRejectProcedure          = "/sharedledger.v1.MembershipService/Reject"
	MembershipServiceGetMembershipProcedure   = "/sharedledger.v1.MembershipService/GetMembership"
	MembershipServiceListMembershipsProcedure = "/sharedledger.v1.MembershipService/ListMemberships"
)

// MembershipServiceHandler is implemented by the server.
type MembershipServiceHandler interface {
	Invite(context.Context, *connect.Request[api.InviteRequest]) (*connect.Response[api.MembershipResponse], error)
	Accept(context.Context, *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error)
	Reject(context.Context, *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error)
	GetMembership(context.Context, *connect.Request[api.GetMembershipRequest]) (*connect.Response[api.MembershipResponse], error)
	ListMemberships(context.Context, *connect.Request[api.ListMembershipsRequest]) (*connect.Response[api.ListMembershipsResponse], error)
}

// NewMembershipServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewMembershipServiceHandler(svc MembershipServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	routes := map[string]http.Handler{
		MembershipServiceInviteProcedure:          connect.NewUnaryHandler(MembershipServiceInviteProcedure, svc.Invite, opts...),
		MembershipServiceAcceptProcedure:          connect.NewUnaryHandler(MembershipServiceAcceptProcedure, svc.Accept, opts...),
		MembershipServiceRejectProcedure:          connect.NewUnaryHandler(MembershipServiceRejectProcedure, svc.Reject, opts...),
		MembershipServiceGetMembershipProcedure:   connect.NewUnaryHandler(MembershipServiceGetMembershipProcedure, svc.GetMembership, opts...),
		MembershipServiceListMembershipsProcedure: connect.NewUnaryHandler(MembershipServiceListMembershipsProcedure, svc.ListMemberships, opts...),
	}
	return "/" + MembershipServiceName + "/", router(routes)
}

// MembershipServiceClient is a client for the MembershipService.
type MembershipServiceClient interface {
	Invite(context.Context, *connect.Request[api.InviteRequest]) (*connect.Response[api.MembershipResponse], error)
	Accept(context.Context, *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error)
	Reject(context.Context, *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error)
	GetMembership(context.Context, *connect.Request[api.GetMembershipRequest]) (*connect.Response[api.MembershipResponse], error)
	ListMemberships(context.Context, *connect.Request[api.ListMembershipsRequest]) (*connect.Response[api.ListMembershipsResponse], error)
}

// NewMembershipServiceClient constructs a client for the MembershipService at
// baseURL, e.g. http://localhost:8080.
func NewMembershipServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) MembershipServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &membershipServiceClient{
		invite:          connect.NewClient[api.InviteRequest, api.MembershipResponse](httpClient, baseURL+MembershipServiceInviteProcedure, opts...),
		accept:          connect.NewClient[api.RespondRequest, api.MembershipResponse](httpClient, baseURL+MembershipServiceAcceptProcedure, opts...),
		reject:          connect.NewClient[api.RespondRequest, api.MembershipResponse](httpClient, baseURL+MembershipServiceRejectProcedure, opts...),
		getMembership:   connect.NewClient[api.GetMembershipRequest, api.MembershipResponse](httpClient, baseURL+MembershipServiceGetMembershipProcedure, opts...),
		listMemberships: connect.NewClient[api.ListMembershipsRequest, api.ListMembershipsResponse](httpClient, baseURL+MembershipServiceListMembershipsProcedure, opts...),
	}
}

type membershipServiceClient struct {
	invite          *connect.Client[api.InviteRequest, api.MembershipResponse]
	accept          *connect.Client[api.RespondRequest, api.MembershipResponse]
	reject          *connect.Client[api.RespondRequest, api.MembershipResponse]
	getMembership   *connect.Client[api.GetMembershipRequest, api.MembershipResponse]
	listMemberships *connect.Client[api.ListMembershipsRequest, api.ListMembershipsResponse]
}

func (c *membershipServiceClient) Invite(ctx context.Context, req *connect.Request[api.InviteRequest]) (*connect.Response[api.MembershipResponse], error) {
	return c.invite.CallUnary(ctx, req)
}

func (c *membershipServiceClient) Accept(ctx context.Context, req *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error) {
	return c.accept.CallUnary(ctx, req)
}

func (c *membershipServiceClient) Reject(ctx context.Context, req *connect.Request[api.RespondRequest]) (*connect.Response[api.MembershipResponse], error) {
	return c.reject.CallUnary(ctx, req)
}

func (c *membershipServiceClient) GetMembership(ctx context.Context, req *connect.Request[api.GetMembershipRequest]) (*connect.Response[api.MembershipResponse], error) {
	return c.getMembership.CallUnary(ctx, req)
}

func (c *membershipServiceClient) ListMemberships(ctx context.Context, req *connect.Request[api.ListMembershipsRequest]) (*connect.Response[api.ListMembershipsResponse], error) {
	return c.listMemberships.CallUnary(ctx, req)
}

// router dispatches on the exact procedure path.
func router(routes map[string]http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := routes[r.URL.Path]; ok {
			h.ServeHTTP(w, r)
			return
		}
		http.NotFound(w, r)
	})
}
