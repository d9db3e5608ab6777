package apiconnect

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/pkg/api"
)

// LedgerServiceName is the fully-qualified name of the LedgerService.
const LedgerServiceName = "sharedledger.v1.LedgerService"

const (
	LedgerServiceGetBalanceProcedure  = "/sharedledger.v1.LedgerService/GetBalance"
	LedgerServiceSettleProcedure      = "/sharedledger.v1.LedgerService/Settle"
	LedgerServiceAddEntryProcedure    = "/sharedledger.v1.LedgerService/AddEntry"
	LedgerServiceListEntriesProcedure = "/sharedledger.v1.LedgerService/ListEntries"
	LedgerServiceUpdateEntryProcedure = "/sharedledger.v1.LedgerService/UpdateEntry"
	LedgerServiceDeleteEntryProcedure = "/sharedledger.v1.LedgerService/DeleteEntry"
)

// LedgerServiceHandler is implemented by the server.
type LedgerServiceHandler interface {
	GetBalance(context.Context, *connect.Request[api.GetBalanceRequest]) (*connect.Response[api.GetBalanceResponse], error)
	Settle(context.Context, *connect.Request[api.SettleRequest]) (*connect.Response[api.SettleResponse], error)
	AddEntry(context.Context, *connect.Request[api.AddEntryRequest]) (*connect.Response[api.EntryResponse], error)
	ListEntries(context.Context, *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error)
	UpdateEntry(context.Context, *connect.Request[api.UpdateEntryRequest]) (*connect.Response[api.EntryResponse], error)
	DeleteEntry(context.Context, *connect.Request[api.DeleteEntryRequest]) (*connect.Response[api.DeleteEntryResponse], error)
}

// NewLedgerServiceHandler builds an HTTP handler from the service
// implementation. It returns the path on which to mount the handler and the
// handler itself.
func NewLedgerServiceHandler(svc LedgerServiceHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(Codec{})}, opts...)
	routes := map[string]http.Handler{
		LedgerServiceGetBalanceProcedure:  connect.NewUnaryHandler(LedgerServiceGetBalanceProcedure, svc.GetBalance, opts...),
		LedgerServiceSettleProcedure:      connect.NewUnaryHandler(LedgerServiceSettleProcedure, svc.Settle, opts...),
		LedgerServiceAddEntryProcedure:    connect.NewUnaryHandler(LedgerServiceAddEntryProcedure, svc.AddEntry, opts...),
		LedgerServiceListEntriesProcedure: connect.NewUnaryHandler(LedgerServiceListEntriesProcedure, svc.ListEntries, opts...),
		LedgerServiceUpdateEntryProcedure: connect.NewUnaryHandler(LedgerServiceUpdateEntryProcedure, svc.UpdateEntry, opts...),
		LedgerServiceDeleteEntryProcedure: connect.NewUnaryHandler(LedgerServiceDeleteEntryProcedure, svc.DeleteEntry, opts...),
	}
	return "/" + LedgerServiceName + "/", router(routes)
}

// LedgerServiceClient is a client for the LedgerService.
type LedgerServiceClient interface {
	GetBalance(context.Context, *connect.Request[api.GetBalanceRequest]) (*connect.Response[api.GetBalanceResponse], error)
	Settle(context.Context, *connect.Request[api.SettleRequest]) (*connect.Response[api.SettleResponse], error)
	AddEntry(context.Context, *connect.Request[api.AddEntryRequest]) (*connect.Response[api.EntryResponse], error)
	ListEntries(context.Context, *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error)
	UpdateEntry(context.Context, *connect.Request[api.UpdateEntryRequest]) (*connect.Response[api.EntryResponse], error)
	DeleteEntry(context.Context, *connect.Request[api.DeleteEntryRequest]) (*connect.Response[api.DeleteEntryResponse], error)
}

// NewLedgerServiceClient constructs a client for the LedgerService at baseURL.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) LedgerServiceClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &ledgerServiceClient{
		getBalance:  connect.NewClient[api.GetBalanceRequest, api.GetBalanceResponse](httpClient, baseURL+LedgerServiceGetBalanceProcedure, opts...),
		settle:      connect.NewClient[api.SettleRequest, api.SettleResponse](httpClient, baseURL+LedgerServiceSettleProcedure, opts...),
		addEntry:    connect.NewClient[api.AddEntryRequest, api.EntryResponse](httpClient, baseURL+LedgerServiceAddEntryProcedure, opts...),
		listEntries: connect.NewClient[api.ListEntriesRequest, api.ListEntriesResponse](httpClient, baseURL+LedgerServiceListEntriesProcedure, opts...),
		updateEntry: connect.NewClient[api.UpdateEntryRequest, api.EntryResponse](httpClient, baseURL+LedgerServiceUpdateEntryProcedure, opts...),
		deleteEntry: connect.NewClient[api.DeleteEntryRequest, api.DeleteEntryResponse](httpClient, baseURL+LedgerServiceDeleteEntryProcedure, opts...),
	}
}

type ledgerServiceClient struct {
	getBalance  *connect.Client[api.GetBalanceRequest, api.GetBalanceResponse]
	settle      *connect.Client[api.SettleRequest, api.SettleResponse]
	addEntry    *connect.Client[api.AddEntryRequest, api.EntryResponse]
	listEntries *connect.Client[api.ListEntriesRequest, api.ListEntriesResponse]
	updateEntry *connect.Client[api.UpdateEntryRequest, api.EntryResponse]
	deleteEntry *connect.Client[api.DeleteEntryRequest, api.DeleteEntryResponse]
}

func (c *ledgerServiceClient) GetBalance(ctx context.Context, req *connect.Request[api.GetBalanceRequest]) (*connect.Response[api.GetBalanceResponse], error) {
	return c.getBalance.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) Settle(ctx context.Context, req *connect.Request[api.SettleRequest]) (*connect.Response[api.SettleResponse], error) {
	return c.settle.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) AddEntry(ctx context.Context, req *connect.Request[api.AddEntryRequest]) (*connect.Response[api.EntryResponse], error) {
	return c.addEntry.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) ListEntries(ctx context.Context, req *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error) {
	return c.listEntries.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) UpdateEntry(ctx context.Context, req *connect.Request[api.UpdateEntryRequest]) (*connect.Response[api.EntryResponse], error) {
	return c.updateEntry.CallUnary(ctx, req)
}

func (c *ledgerServiceClient) DeleteEntry(ctx context.Context, req *connect.Request[api.DeleteEntryRequest]) (*connect.Response[api.DeleteEntryResponse], error) {
	return c.deleteEntry.CallUnary(ctx, req)
}
