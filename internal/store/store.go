package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Transfer lifecycle statuses as projected into the record store.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

var (
	// ErrConflict is returned by Insert when the transfer id already exists.
	ErrConflict = errors.New("transfer already recorded")
	// ErrNotFound is returned by Get for unknown transfer ids.
	ErrNotFound = errors.New("transfer not found")
)

// Transfer is the persisted projection of one cross-chain transfer.
type Transfer struct {
	ID            string // 0x-prefixed 32-byte identifier, opaque
	Sender        string
	Recipient     string
	Amount        string // original amount, decimal string
	BridgedAmount string // destination-chain amount, decimal string
	Status        string
	SourceBlock   uint64
	DestBlock     *uint64
	EventTime     time.Time
	Signature     string
	UpdatedAt     time.Time
}

// StatusUpdate carries the optional fields set alongside a status change.
type StatusUpdate struct {
	DestBlock *uint64
	Signature string
}

// Store wraps SQLite-backed persistence for transfer records.
type Store struct {
	db *sql.DB
}

// Open initializes a SQLite database and runs minimal schema setup.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := configure(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store not initialized")
	}
	return s.db.PingContext(ctx)
}

func configure(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	schema := `
CREATE TABLE IF NOT EXISTS transfers (
  id             TEXT PRIMARY KEY,
  sender         TEXT NOT NULL,
  recipient      TEXT NOT NULL,
  amount         TEXT NOT NULL,
  bridged_amount TEXT NOT NULL,
  status         TEXT NOT NULL,
  source_block   INTEGER NOT NULL,
  dest_block     INTEGER,
  event_time     TIMESTAMP NOT NULL,
  signature      TEXT,
  created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_transfers_status ON transfers(status);
CREATE INDEX IF NOT EXISTS idx_transfers_event_time ON transfers(event_time);
`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Exists reports whether a transfer id has already been recorded.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("id required")
	}
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM transfers WHERE id = ?;`, id).Scan(&one)
	switch err {
	case nil:
		return true, nil
	case sql.ErrNoRows:
		return false, nil
	default:
		return false, fmt.Errorf("exists: %w", err)
	}
}

// Insert stores a new transfer record; the primary key enforces at-most-once
// insertion and a duplicate id surfaces as ErrConflict.
func (s *Store) Insert(ctx context.Context, tr Transfer) error {
	if tr.ID == "" {
		return errors.New("transfer id required")
	}
	if tr.Status == "" {
		tr.Status = StatusPending
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO transfers (id, sender, recipient, amount, bridged_amount, status, source_block, dest_block, event_time, signature)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, tr.ID, tr.Sender, tr.Recipient, tr.Amount, tr.BridgedAmount, tr.Status, tr.SourceBlock,
		nullUint(tr.DestBlock), tr.EventTime.UTC(), nullString(tr.Signature))
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert transfer: %w", err)
	}
	return nil
}

// UpdateStatus sets the status and any extra fields for a transfer id.
// Re-issuing the same terminal update is not an error, and updating an
// unknown id affects no rows.
func (s *Store) UpdateStatus(ctx context.Context, id, status string, extra StatusUpdate) error {
	if id == "" {
		return errors.New("id required")
	}
	_, err := s.db.ExecContext(ctx, `
UPDATE transfers SET
  status = ?,
  dest_block = COALESCE(?, dest_block),
  signature = COALESCE(?, signature),
  updated_at = CURRENT_TIMESTAMP
WHERE id = ?;
`, status, nullUint(extra.DestBlock), nullString(extra.Signature), id)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// Get retrieves a single transfer by id.
func (s *Store) Get(ctx context.Context, id string) (Transfer, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, sender, recipient, amount, bridged_amount, status, source_block, dest_block, event_time, COALESCE(signature, ''), updated_at
FROM transfers WHERE id = ?;
`, id)
	tr, err := scanTransfer(row)
	if err == sql.ErrNoRows {
		return Transfer{}, ErrNotFound
	}
	if err != nil {
		return Transfer{}, fmt.Errorf("get transfer: %w", err)
	}
	return tr, nil
}

// SelectOldest returns up to n transfers ordered by event time ascending.
func (s *Store) SelectOldest(ctx context.Context, n int) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, sender, recipient, amount, bridged_amount, status, source_block, dest_block, event_time, COALESCE(signature, ''), updated_at
FROM transfers ORDER BY event_time ASC LIMIT ?;
`, n)
	if err != nil {
		return nil, fmt.Errorf("select oldest: %w", err)
	}
	defer rows.Close()

	out := []Transfer{}
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// SelectByStatus returns up to n transfers with the given status, oldest first.
func (s *Store) SelectByStatus(ctx context.Context, status string, n int) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, sender, recipient, amount, bridged_amount, status, source_block, dest_block, event_time, COALESCE(signature, ''), updated_at
FROM transfers WHERE status = ? ORDER BY event_time ASC LIMIT ?;
`, status, n)
	if err != nil {
		return nil, fmt.Errorf("select by status: %w", err)
	}
	defer rows.Close()

	out := []Transfer{}
	for rows.Next() {
		tr, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transfer: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// DeleteOldest removes up to n oldest transfers and returns the count removed.
// Maintenance path only.
func (s *Store) DeleteOldest(ctx context.Context, n int) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM transfers WHERE id IN (
  SELECT id FROM transfers ORDER BY event_time ASC LIMIT ?
);
`, n)
	if err != nil {
		return 0, fmt.Errorf("delete oldest: %w", err)
	}
	return res.RowsAffected()
}

// CountByStatus returns the number of records per lifecycle status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM transfers GROUP BY status;`)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[status] = count
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransfer(row rowScanner) (Transfer, error) {
	var tr Transfer
	var destBlock sql.NullInt64
	err := row.Scan(&tr.ID, &tr.Sender, &tr.Recipient, &tr.Amount, &tr.BridgedAmount,
		&tr.Status, &tr.SourceBlock, &destBlock, &tr.EventTime, &tr.Signature, &tr.UpdatedAt)
	if err != nil {
		return Transfer{}, err
	}
	if destBlock.Valid {
		v := uint64(destBlock.Int64)
		tr.DestBlock = &v
	}
	return tr, nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces SQLITE_CONSTRAINT_PRIMARYKEY as a plain
	// error string; there is no typed sentinel to compare against.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullUint(v *uint64) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
