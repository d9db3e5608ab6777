// Package events defines the domain events emitted after a commit.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TopicSettlementRecorded is the default topic for SettlementRecorded.
const TopicSettlementRecorded = "settlement.recorded"

// Publisher delivers events to subscribers outside the process.
type Publisher interface {
	// Publish sends one event. key groups related events (e.g. by membership)
	// so that they keep their relative order downstream.
	Publish(ctx context.Context, key string, event any) error
}

// SettlementRecorded is emitted once a settlement pair has been committed.
type SettlementRecorded struct {
	MembershipID string          `json:"membership_id"`
	PayerID      string          `json:"payer_id"`
	ReceiverID   string          `json:"receiver_id"`
	Amount       decimal.Decimal `json:"amount"`
	Method       string          `json:"method"`
	EntryIDs     []string        `json:"entry_ids"`
	Settled      bool            `json:"settled"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
