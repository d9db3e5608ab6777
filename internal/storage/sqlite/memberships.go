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

const membershipColumns = "id, member_a, member_b, created_by, status, created_at, updated_at"

// CreateMembership persists a new membership to the database.
func (s *SQLiteStore) CreateMembership(ctx context.Context, m *models.Membership) error {
	// Generate ID if not set
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO memberships (`+membershipColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.MemberA, m.MemberB, m.CreatedBy, string(m.Status),
		toMillis(m.CreatedAt), toMillis(m.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert membership: %w", err)
	}

	return nil
}

// GetMembership retrieves a membership by ID.
func (s *SQLiteStore) GetMembership(ctx context.Context, membershipID string) (*models.Membership, error) {
	return getMembership(ctx, s.db, membershipID)
}

// FindMembershipBetween returns the latest non-rejected membership between two users.
func (s *SQLiteStore) FindMembershipBetween(ctx context.Context, userA, userB string) (*models.Membership, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships
		 WHERE ((member_a = ? AND member_b = ?) OR (member_a = ? AND member_b = ?))
		   AND status <> 'rejected'
		 ORDER BY created_at DESC LIMIT 1`,
		userA, userB, userB, userA,
	)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find membership: %w", err)
	}
	return m, nil
}

// ListMembershipsByMember retrieves all memberships of a user, newest first.
func (s *SQLiteStore) ListMembershipsByMember(ctx context.Context, userID string) ([]*models.Membership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships
		 WHERE member_a = ? OR member_b = ?
		 ORDER BY created_at DESC`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	var memberships []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		memberships = append(memberships, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memberships: %w", err)
	}

	return memberships, nil
}

// SetMembershipStatus performs a compare-and-set on the membership status.
func (s *SQLiteStore) SetMembershipStatus(ctx context.Context, membershipID string, from, to models.MembershipStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE memberships SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), toMillis(time.Now().UTC()), membershipID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to update membership status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated rows: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: either the membership is gone or its status moved on.
	if _, err := s.GetMembership(ctx, membershipID); err != nil {
		return err
	}
	return storage.ErrStatusConflict
}

func getMembership(ctx context.Context, q querier, membershipID string) (*models.Membership, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+membershipColumns+` FROM memberships WHERE id = ?`,
		membershipID,
	)
	m, err := scanMembership(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("membership %s: %w", membershipID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMembership(row scanner) (*models.Membership, error) {
	m := &models.Membership{}
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&m.ID, &m.MemberA, &m.MemberB, &m.CreatedBy, &status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	m.Status = models.MembershipStatus(status)
	m.CreatedAt = fromMillis(createdAt)
	m.UpdatedAt = fromMillis(updatedAt)
	return m, nil
}
