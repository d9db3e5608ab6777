// Package settlement records out-of-band payments between the two members of
// a membership and returns the balance that results.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/events"
	"github.com/mmynk/sharedledger/internal/ledger"
	"github.com/mmynk/sharedledger/internal/lock"
	"github.com/mmynk/sharedledger/internal/metrics"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

const (
	// DefaultWindow is how long an identical settlement counts as a duplicate.
	DefaultWindow = 60 * time.Second

	// DefaultTimeout bounds one settlement unit of work, lock wait included.
	DefaultTimeout = 10 * time.Second

	publishTimeout = 2 * time.Second
)

// Request is one settlement submission.
type Request struct {
	MembershipID string
	// RequesterID is the authenticated caller. It must equal PayerID.
	RequesterID string
	PayerID     string
	ReceiverID  string
	Amount      decimal.Decimal
	Method      string
}

// Result is the committed settlement pair and the balance after it.
type Result struct {
	Report *balance.Report
	// Entries holds the payer's debit followed by the receiver's credit.
	Entries [2]*models.LedgerEntry
}

// Coordinator runs settlements. It holds no per-request state and is safe
// for concurrent use.
type Coordinator struct {
	store      storage.Store
	calculator *balance.Calculator
	locker     lock.Locker
	publisher  events.Publisher
	metrics    *metrics.Metrics
	methods    models.MethodSet
	window     time.Duration
	timeout    time.Duration
	now        func() time.Time
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithCalculator sets the calculator used to render the report.
func WithCalculator(c *balance.Calculator) Option {
	return func(co *Coordinator) { co.calculator = c }
}

// WithLocker sets the per-membership lock. Defaults to an in-process lock.
func WithLocker(l lock.Locker) Option {
	return func(co *Coordinator) { co.locker = l }
}

// WithPublisher sets where SettlementRecorded events go. Defaults to events.Nop.
func WithPublisher(p events.Publisher) Option {
	return func(co *Coordinator) { co.publisher = p }
}

// WithMetrics records every attempt on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) { co.metrics = m }
}

// WithMethods replaces the accepted payment methods.
func WithMethods(set models.MethodSet) Option {
	return func(co *Coordinator) { co.methods = set }
}

// WithWindow sets the duplicate detection window.
func WithWindow(d time.Duration) Option {
	return func(co *Coordinator) { co.window = d }
}

// WithTimeout sets the deadline of the unit of work.
func WithTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.timeout = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(co *Coordinator) { co.now = now }
}

// New creates a Coordinator over store.
func New(store storage.Store, opts ...Option) *Coordinator {
	methods, _ := models.NewMethodSet(models.DefaultMethods...)
	c := &Coordinator{
		store:      store,
		calculator: &balance.Calculator{},
		locker:     lock.NewLocal(),
		publisher:  events.Nop{},
		methods:    methods,
		window:     DefaultWindow,
		timeout:    DefaultTimeout,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settle validates req, appends the payer debit and receiver credit in one
// atomic unit, and returns the balance computed inside that same unit.
//
// Checks run in order and the first failure wins: input, membership active,
// requester is payer, payer/receiver are the two members, no identical
// settlement by the payer inside the window.
func (c *Coordinator) Settle(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := c.settle(ctx, req)
	c.metrics.ObserveSettlement(metrics.Classify(err), time.Since(start))

	if err != nil {
		if errors.Is(err, ledger.ErrPersistence) {
			slog.Error("Settlement failed",
				"membership_id", req.MembershipID,
				"payer_id", req.PayerID,
				"receiver_id", req.ReceiverID,
				"amount", req.Amount.String(),
				"method", req.Method,
				"error", err,
			)
		} else {
			slog.Info("Settlement rejected",
				"membership_id", req.MembershipID,
				"payer_id", req.PayerID,
				"error", err,
			)
		}
		return nil, err
	}

	slog.Info("Settlement recorded",
		"membership_id", req.MembershipID,
		"payer_id", req.PayerID,
		"receiver_id", req.ReceiverID,
		"amount", req.Amount.String(),
		"settled", res.Report.Settled,
	)
	c.publish(ctx, req, res)
	return res, nil
}

func (c *Coordinator) settle(ctx context.Context, req Request) (*Result, error) {
	method, err := c.validate(&req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var result *Result
	err = c.locker.WithLock(ctx, "settlement:"+req.MembershipID, func(ctx context.Context) error {
		return c.store.WithinTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			r, err := c.settleTx(ctx, tx, req, method)
			if err != nil {
				return err
			}
			result = r
			return nil
		})
	})
	if err != nil {
		return nil, ledger.FromStorage(err, "settlement")
	}
	return result, nil
}

func (c *Coordinator) validate(req *Request) (models.Method, error) {
	req.PayerID = strings.TrimSpace(req.PayerID)
	req.ReceiverID = strings.TrimSpace(req.ReceiverID)
	if req.PayerID == "" || req.ReceiverID == "" || req.Amount.IsZero() || strings.TrimSpace(req.Method) == "" {
		return "", ledger.Errorf(ledger.ErrInvalidInput, "missing required fields")
	}
	if req.Amount.IsNegative() {
		return "", ledger.Errorf(ledger.ErrInvalidInput, "amount must be positive")
	}
	method, err := c.methods.Parse(req.Method)
	if err != nil {
		return "", ledger.Errorf(ledger.ErrInvalidInput, "invalid payment method")
	}
	return method, nil
}

// settleTx runs inside the unit of work. Every read observes the state as of
// the start of the unit plus the writes made here.
func (c *Coordinator) settleTx(ctx context.Context, tx storage.Tx, req Request, method models.Method) (*Result, error) {
	m, err := tx.GetMembership(ctx, req.MembershipID)
	if err != nil {
		return nil, ledger.FromStorage(err, "membership")
	}
	if err := ledger.RequireActive(m); err != nil {
		return nil, err
	}
	if req.RequesterID != req.PayerID {
		return nil, ledger.Errorf(ledger.ErrUnauthorized, "you can only make payments on your own behalf")
	}
	if err := ledger.RequireParticipant(m, req.RequesterID); err != nil {
		return nil, err
	}
	if req.PayerID == req.ReceiverID || !m.HasMember(req.PayerID) || !m.HasMember(req.ReceiverID) {
		return nil, ledger.Errorf(ledger.ErrInvalidInput, "invalid payer or receiver")
	}

	now := c.now()
	dup, err := tx.FindRecentSettlement(ctx, m.ID, req.PayerID, req.Amount, now.Add(-c.window))
	if err != nil {
		return nil, ledger.FromStorage(err, "recent settlements")
	}
	if dup != nil {
		return nil, ledger.Errorf(ledger.ErrDuplicateSettlement, "duplicate payment detected, please wait before trying again")
	}

	pair := [2]*models.LedgerEntry{
		{
			MembershipID: m.ID,
			OwnerID:      req.PayerID,
			Amount:       req.Amount,
			Kind:         models.KindDebit,
			Category:     models.CategorySettlement,
			Note:         fmt.Sprintf("Settlement payment via %s", method),
			Date:         now,
			CreatedAt:    now,
		},
		{
			MembershipID: m.ID,
			OwnerID:      req.ReceiverID,
			Amount:       req.Amount,
			Kind:         models.KindCredit,
			Category:     models.CategorySettlementReceived,
			Note:         fmt.Sprintf("Settlement received via %s", method),
			Date:         now,
			CreatedAt:    now,
		},
	}
	if err := tx.AppendEntries(ctx, pair); err != nil {
		return nil, ledger.FromStorage(err, "settlement entries")
	}

	entries, err := tx.ListEntries(ctx, m.ID)
	if err != nil {
		return nil, ledger.FromStorage(err, "entries")
	}

	return &Result{
		Report:  c.calculator.Compute(m.MemberA, m.MemberB, entries),
		Entries: pair,
	}, nil
}

func (c *Coordinator) publish(ctx context.Context, req Request, res *Result) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	event := events.SettlementRecorded{
		MembershipID: req.MembershipID,
		PayerID:      req.PayerID,
		ReceiverID:   req.ReceiverID,
		Amount:       req.Amount,
		Method:       req.Method,
		EntryIDs:     []string{res.Entries[0].ID, res.Entries[1].ID},
		Settled:      res.Report.Settled,
		OccurredAt:   res.Entries[0].CreatedAt,
	}
	if err := c.publisher.Publish(ctx, req.MembershipID, event); err != nil {
		slog.Warn("Failed to publish settlement event", "membership_id", req.MembershipID, "error", err)
	}
}
