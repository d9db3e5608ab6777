package service

import (
	"time"

	"github.com/mmynk/sharedledger/internal/balance"
	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/pkg/api"
)

func toAPIMembership(m *models.Membership) api.Membership {
	return api.Membership{
		ID:        m.ID,
		MemberA:   m.MemberA,
		MemberB:   m.MemberB,
		CreatedBy: m.CreatedBy,
		Status:    string(m.Status),
		CreatedAt: m.CreatedAt.UnixMilli(),
		UpdatedAt: m.UpdatedAt.UnixMilli(),
	}
}

func toAPIEntry(e *models.LedgerEntry) api.Entry {
	return api.Entry{
		ID:           e.ID,
		MembershipID: e.MembershipID,
		OwnerID:      e.OwnerID,
		Amount:       e.Amount,
		Kind:         string(e.Kind),
		Category:     e.Category,
		Note:         e.Note,
		Date:         e.Date.UnixMilli(),
		CreatedAt:    e.CreatedAt.UnixMilli(),
	}
}

func toAPIMemberBalance(b balance.MemberBalance) api.MemberBalance {
	return api.MemberBalance{
		MemberID:        b.MemberID,
		TotalExpense:    b.TotalExpense,
		TotalIncome:     b.TotalIncome,
		SettledPaid:     b.SettledPaid,
		SettledReceived: b.SettledReceived,
		Balance:         b.Balance,
	}
}

func toAPIBalance(r *balance.Report) api.Balance {
	return api.Balance{
		MemberA:      toAPIMemberBalance(r.MemberA),
		MemberB:      toAPIMemberBalance(r.MemberB),
		TotalExpense: r.TotalExpense,
		TotalIncome:  r.TotalIncome,
		FairShare:    r.FairShare,
		Statement:    r.Statement,
		Settled:      r.Settled,
		OwedAmount:   r.OwedAmount,
		OwedBy:       r.OwedBy,
		OwedTo:       r.OwedTo,
	}
}

// fromMillis converts an optional Unix millisecond timestamp; 0 is the zero time.
func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
