package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database schema.
// These run on startup to ensure tables exist.
// Amounts are stored as canonical decimal strings; timestamps as Unix milliseconds.
const schema = `
CREATE TABLE IF NOT EXISTS memberships (
    id TEXT PRIMARY KEY,
    member_a TEXT NOT NULL,
    member_b TEXT NOT NULL,
    created_by TEXT NOT NULL,
    status TEXT NOT NULL CHECK (status IN ('pending', 'active', 'rejected')),
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL,
    CHECK (member_a <> member_b)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id TEXT PRIMARY KEY,
    membership_id TEXT NOT NULL,
    owner_id TEXT NOT NULL,
    amount TEXT NOT NULL,
    kind TEXT NOT NULL CHECK (kind IN ('debit', 'credit')),
    category TEXT NOT NULL,
    note TEXT,
    date INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (membership_id) REFERENCES memberships(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_memberships_member_a ON memberships(member_a);
CREATE INDEX IF NOT EXISTS idx_memberships_member_b ON memberships(member_b);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_membership_id ON ledger_entries(membership_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_settlement
    ON ledger_entries(membership_id, owner_id, category, created_at);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
