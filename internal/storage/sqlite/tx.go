package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

var _ storage.Tx = (*sqliteTx)(nil)

// sqliteTx is a storage.Tx bound to one *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	return getMembership(ctx, t.tx, membershipID)
}

func (t *sqliteTx) ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, t.tx, membershipID)
}

func (t *sqliteTx) FindRecentSettlement(ctx context.Context, membershipID, payerID string, amount decimal.Decimal, since time.Time) (*models.LedgerEntry, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries
		 WHERE membership_id = ? AND owner_id = ? AND category = ? AND kind = ?
		   AND amount = ? AND created_at >= ?
		 ORDER BY created_at DESC LIMIT 1`,
		membershipID, payerID, models.CategorySettlement, string(models.KindDebit),
		amount.String(), toMillis(since),
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up recent settlement: %w", err)
	}
	return entry, nil
}

func (t *sqliteTx) AppendEntries(ctx context.Context, entries [2]*models.LedgerEntry) error {
	for _, entry := range entries {
		if err := insertEntry(ctx, t.tx, entry); err != nil {
			return err
		}
	}
	return nil
}
