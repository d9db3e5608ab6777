package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/sharedledger/internal/models"
	"github.com/mmynk/sharedledger/internal/storage"
)

const entryColumns = "id, membership_id, owner_id, amount, kind, category, note, date, created_at"

// AddEntry persists a new ordinary entry to the database.
func (s *SQLiteStore) AddEntry(ctx context.Context, entry *models.LedgerEntry) error {
	return insertEntry(ctx, s.db, entry)
}

// GetEntry retrieves an entry by ID.
func (s *SQLiteStore) GetEntry(ctx context.Context, entryID string) (*models.LedgerEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE id = ?`,
		entryID,
	)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry: %w", err)
	}
	return entry, nil
}

// ListEntries retrieves all entries of a membership.
func (s *SQLiteStore) ListEntries(ctx context.Context, membershipID string) ([]*models.LedgerEntry, error) {
	return listEntries(ctx, s.db, membershipID)
}

// UpdateEntry replaces the mutable fields of an entry.
func (s *SQLiteStore) UpdateEntry(ctx context.Context, entry *models.LedgerEntry) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ledger_entries SET amount = ?, kind = ?, category = ?, note = ?, date = ? WHERE id = ?`,
		entry.Amount.String(), string(entry.Kind), entry.Category, nullable(entry.Note), toMillis(entry.Date),
		entry.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update entry: %w", err)
	}
	return expectOneRow(res, entry.ID)
}

// DeleteEntry removes an entry by ID.
func (s *SQLiteStore) DeleteEntry(ctx context.Context, entryID string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ledger_entries WHERE id = ?", entryID)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return expectOneRow(res, entryID)
}

func expectOneRow(res sql.Result, entryID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("entry %s: %w", entryID, storage.ErrNotFound)
	}
	return nil
}

func insertEntry(ctx context.Context, q querier, entry *models.LedgerEntry) error {
	// Generate ID if not set
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Date.IsZero() {
		entry.Date = entry.CreatedAt
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO ledger_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.MembershipID, entry.OwnerID, entry.Amount.String(), string(entry.Kind),
		entry.Category, nullable(entry.Note), toMillis(entry.Date), toMillis(entry.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

func listEntries(ctx context.Context, q querier, membershipID string) ([]*models.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE membership_id = ?`,
		membershipID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*models.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	return entries, nil
}

func scanEntry(row scanner) (*models.LedgerEntry, error) {
	entry := &models.LedgerEntry{}
	var kind string
	var note sql.NullString
	var date, createdAt int64
	if err := row.Scan(&entry.ID, &entry.MembershipID, &entry.OwnerID, &entry.Amount, &kind,
		&entry.Category, &note, &date, &createdAt); err != nil {
		return nil, err
	}
	entry.Kind = models.EntryKind(kind)
	if note.Valid {
		entry.Note = note.String
	}
	entry.Date = fromMillis(date)
	entry.CreatedAt = fromMillis(createdAt)
	return entry, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
