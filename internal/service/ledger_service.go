package service

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"

	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/metrics"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/settlement"
	"github.com/mmynk/sharedledger/internal/storage"
	"github.com/mmynk/sharedledger/pkg/api"
	"github.com/mmynk/sharedledger/pkg/api/apiconnect"
)

var _ apiconnect.LedgerServiceHandler = (*LedgerService)(nil)

// LedgerService implements the Connect LedgerService: balances, settlements
// and ordinary entries of a membership.
type LedgerService struct {
	balances    *ledger.Balances
	entries     *ledger.Entries
	settlements *settlement.Coordinator
	metrics     *metrics.Metrics
}

// NewLedgerService creates a LedgerService. calculator and m may be nil.
func NewLedgerService(store storage.Store, coordinator *settlement.Coordinator, calculator *balance.Calculator, m *metrics.Metrics) *LedgerService {
	return &LedgerService{
		balances:    ledger.NewBalances(store, calculator),
		entries:     ledger.NewEntries(store),
		settlements: coordinator,
		metrics:     m,
	}
}

// GetBalance computes the current balance of a membership.
func (s *LedgerService) GetBalance(ctx context.Context, req *connect.Request[api.GetBalanceRequest]) (*connect.Response[api.GetBalanceResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.balances.Get(ctx, req.Msg.MembershipID, userID)
	s.metrics.ObserveBalanceQuery(metrics.Classify(err))
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Debug("Balance computed", "membership_id", req.Msg.MembershipID, "statement", report.Statement)
	return connect.NewResponse(&api.GetBalanceResponse{Balance: toAPIBalance(report)}), nil
}

// Settle records a payment from the caller to the other member.
func (s *LedgerService) Settle(ctx context.Context, req *connect.Request[api.SettleRequest]) (*connect.Response[api.SettleResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}
	slog.Info("Settle request received",
		"membership_id", req.Msg.MembershipID,
		"payer_id", req.Msg.PayerID,
		"receiver_id", req.Msg.ReceiverID,
		"amount", req.Msg.Amount.String(),
		"method", req.Msg.Method,
	)

	res, err := s.settlements.Settle(ctx, settlement.Request{
		MembershipID: req.Msg.MembershipID,
		RequesterID:  userID,
		PayerID:      req.Msg.PayerID,
		ReceiverID:   req.Msg.ReceiverID,
		Amount:       req.Msg.Amount,
		Method:       req.Msg.Method,
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	return connect.NewResponse(&api.SettleResponse{
		Message: "Settlement recorded successfully",
		Balance: toAPIBalance(res.Report),
		Debit:   toAPIEntry(res.Entries[0]),
		Credit:  toAPIEntry(res.Entries[1]),
	}), nil
}

// AddEntry records an ordinary entry owned by the caller.
func (s *LedgerService) AddEntry(ctx context.Context, req *connect.Request[api.AddEntryRequest]) (*connect.Response[api.EntryResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.entries.Add(ctx, req.Msg.MembershipID, userID, ledger.EntryInput{
		Amount:   req.Msg.Amount,
		Kind:     models.EntryKind(req.Msg.Kind),
		Category: req.Msg.Category,
		Note:     req.Msg.Note,
		Date:     fromMillis(req.Msg.Date),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Info("Entry added", "membership_id", entry.MembershipID, "entry_id", entry.ID, "owner_id", userID)
	return connect.NewResponse(&api.EntryResponse{Entry: toAPIEntry(entry)}), nil
}

// ListEntries returns the membership's entries, newest first.
func (s *LedgerService) ListEntries(ctx context.Context, req *connect.Request[api.ListEntriesRequest]) (*connect.Response[api.ListEntriesResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	entries, err := s.entries.List(ctx, req.Msg.MembershipID, userID)
	if err != nil {
		return nil, toConnectError(err)
	}

	resp := &api.ListEntriesResponse{Entries: make([]api.Entry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, toAPIEntry(e))
	}
	return connect.NewResponse(resp), nil
}

// UpdateEntry edits an ordinary entry owned by the caller.
func (s *LedgerService) UpdateEntry(ctx context.Context, req *connect.Request[api.UpdateEntryRequest]) (*connect.Response[api.EntryResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	entry, err := s.entries.Update(ctx, req.Msg.MembershipID, req.Msg.EntryID, userID, ledger.EntryInput{
		Amount:   req.Msg.Amount,
		Kind:     models.EntryKind(req.Msg.Kind),
		Category: req.Msg.Category,
		Note:     req.Msg.Note,
		Date:     fromMillis(req.Msg.Date),
	})
	if err != nil {
		return nil, toConnectError(err)
	}

	slog.Info("Entry updated", "membership_id", entry.MembershipID, "entry_id", entry.ID)
	return connect.NewResponse(&api.EntryResponse{Entry: toAPIEntry(entry)}), nil
}

// DeleteEntry removes an ordinary entry owned by the caller.
func (s *LedgerService) DeleteEntry(ctx context.Context, req *connect.Request[api.DeleteEntryRequest]) (*connect.Response[api.DeleteEntryResponse], error) {
	userID, err := requireUser(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.entries.Delete(ctx, req.Msg.MembershipID, req.Msg.EntryID, userID); err != nil {
		return nil, toConnectError(err)
	}

	slog.Info("Entry deleted", "membership_id", req.Msg.MembershipID, "entry_id", req.Msg.EntryID)
	return connect.NewResponse(&api.DeleteEntryResponse{}), nil
}
