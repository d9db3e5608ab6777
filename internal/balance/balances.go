// Package balance reduces a two-party shared ledger to a net "who owes whom" report.
package balance

import (
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
)

// DefaultCurrency is the display currency used by Compute.
const DefaultCurrency = money.INR

// SettledStatement is the statement of a report whose balances are within
// SettleThreshold of zero.
const SettledStatement = "Both are settled"

// SettleThreshold is the absolute balance under which both members count as
// settled.
var SettleThreshold = decimal.New(1, -2)

var two = decimal.NewFromInt(2)

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// MemberBalance represents the balance information for one member.
type MemberBalance struct {
	MemberID string

	// TotalExpense and TotalIncome cover ordinary entries only.
	TotalExpense decimal.Decimal
	TotalIncome  decimal.Decimal

	// SettledPaid and SettledReceived cover settlement entries only.
	SettledPaid     decimal.Decimal
	SettledReceived decimal.Decimal

	// Balance is the deviation from the fair share, net of settlements.
	// Positive = owed money, Negative = owes money.
	Balance decimal.Decimal
}

// Net returns the member's net contribution from ordinary entries.
func (b MemberBalance) Net() decimal.Decimal {
	return b.TotalExpense.Sub(b.TotalIncome)
}

// Report is the derived balance of a membership. It is recomputed on every
// query and never stored.
type Report struct {
	MemberA MemberBalance
	MemberB MemberBalance

	TotalExpense decimal.Decimal
	TotalIncome  decimal.Decimal

	// FairShare is what each member should have net-contributed if costs
	// were split evenly.
	FairShare decimal.Decimal

	Statement string

	// Settled is true when |MemberA.Balance| < SettleThreshold.
	Settled bool

	// OwedAmount is |MemberA.Balance|, or zero when settled.
	OwedAmount decimal.Decimal

	// OwedBy is the debtor and OwedTo the creditor. Both are empty when settled.
	OwedBy string
	OwedTo string
}

// Member returns the balance of memberID and whether it is part of the report.
func (r *Report) Member(memberID string) (MemberBalance, bool) {
	switch memberID {
	case r.MemberA.MemberID:
		return r.MemberA, true
	case r.MemberB.MemberID:
		return r.MemberB, true
	}
	return MemberBalance{}, false
}

// Calculator computes balance reports. The zero value renders statements in
// DefaultCurrency. A Calculator is safe for concurrent use.
type Calculator struct {
	currency string
}

// New creates a Calculator rendering statements in the given ISO currency code.
func New(currency string) (*Calculator, error) {
	if money.GetCurrency(currency) == nil {
		return nil, fmt.Errorf("unknown currency code %q", currency)
	}
	return &Calculator{currency: currency}, nil
}

// Compute balances memberA and memberB over entries with DefaultCurrency.
func Compute(memberA, memberB string, entries []*models.LedgerEntry) *Report {
	var c Calculator
	return c.Compute(memberA, memberB, entries)
}

// Compute reduces the full entry set of a membership to a Report.
//
// Algorithm:
//   - Ordinary entries: debit adds to the owner's expense, credit to its income
//   - Settlement entries: debit adds to settled-paid, credit to settled-received
//   - net = expense - income; fair share = (netA + netB) / 2
//   - balance = net - fair share + settled-paid - settled-received
//
// The result does not depend on the order of entries. Entries owned by
// neither member are skipped.
func (c *Calculator) Compute(memberA, memberB string, entries []*models.LedgerEntry) *Report {
	a := &MemberBalance{MemberID: memberA}
	b := &MemberBalance{MemberID: memberB}

	for _, e := range entries {
		var bal *MemberBalance
		switch e.OwnerID {
		case memberA:
			bal = a
		case memberB:
			bal = b
		default:
			continue
		}
		accumulate(bal, e)
	}

	netA, netB := a.Net(), b.Net()
	fairShare := netA.Add(netB).Div(two)

	// Base balance moves by settlements: paying one reduces your debt,
	// receiving one reduces what you are owed.
	a.Balance = netA.Sub(fairShare).Add(a.SettledPaid).Sub(a.SettledReceived)
	b.Balance = netB.Sub(fairShare).Add(b.SettledPaid).Sub(b.SettledReceived)

	report := &Report{
		MemberA:      *a,
		MemberB:      *b,
		TotalExpense: a.TotalExpense.Add(b.TotalExpense),
		TotalIncome:  a.TotalIncome.Add(b.TotalIncome),
		FairShare:    fairShare,
		OwedAmount:   decimal.Zero,
	}

	switch {
	case a.Balance.Abs().LessThan(SettleThreshold):
		report.Settled = true
		report.Statement = SettledStatement
	case a.Balance.IsPositive():
		report.OwedAmount = a.Balance.Abs()
		report.OwedBy, report.OwedTo = memberB, memberA
	default:
		report.OwedAmount = a.Balance.Abs()
		report.OwedBy, report.OwedTo = memberA, memberB
	}
	if !report.Settled {
		report.Statement = fmt.Sprintf("%s pays %s %s", report.OwedBy, report.OwedTo, c.format(report.OwedAmount))
	}

	return report
}

func accumulate(bal *MemberBalance, e *models.LedgerEntry) {
	settlement := e.IsSettlement()
	switch {
	case e.Kind == models.KindDebit && settlement:
		bal.SettledPaid = bal.SettledPaid.Add(e.Amount)
	case e.Kind == models.KindDebit:
		bal.TotalExpense = bal.TotalExpense.Add(e.Amount)
	case e.Kind == models.KindCredit && settlement:
		bal.SettledReceived = bal.SettledReceived.Add(e.Amount)
	case e.Kind == models.KindCredit:
		bal.TotalIncome = bal.TotalIncome.Add(e.Amount)
	}
}

// format renders amount rounded to the currency's minor unit, e.g. "₹50.00".
func (c *Calculator) format(amount decimal.Decimal) string {
	code := c.currency
	if code == "" {
		code = DefaultCurrency
	}
	cur := money.GetCurrency(code)
	minor := amount.Shift(int32(cur.Fraction)).Round(0)
	if minor.GreaterThan(maxMinor) || minor.LessThan(minMinor) {
		return formatLarge(cur, minor)
	}
	return money.New(minor.IntPart(), code).Display()
}

// formatLarge lays out minor units that do not fit in an int64 the same way
// money.Formatter does.
func formatLarge(cur *money.Currency, minor decimal.Decimal) string {
	sa := minor.Abs().String()
	if len(sa) <= cur.Fraction {
		sa = strings.Repeat("0", cur.Fraction-len(sa)+1) + sa
	}
	if cur.Thousand != "" {
		for i := len(sa) - cur.Fraction - 3; i > 0; i -= 3 {
			sa = sa[:i] + cur.Thousand + sa[i:]
		}
	}
	if cur.Fraction > 0 {
		sa = sa[:len(sa)-cur.Fraction] + cur.Decimal + sa[len(sa)-cur.Fraction:]
	}
	sa = strings.Replace(cur.Template, "1", sa, 1)
	sa = strings.Replace(sa, "$", cur.Grapheme, 1)
	if minor.IsNegative() {
		sa = "-" + sa
	}
	return sa
}
