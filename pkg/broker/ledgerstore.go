package broker

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteLedger persists the operation history next to the state file, so the
// prompt context survives across the short-lived step processes that write it.
// Capacity trimming happens on every write.
type SQLiteLedger struct {
	db       *sql.DB
	capacity int
}

// OpenSQLiteLedger opens (or creates) the ledger database at path.
func OpenSQLiteLedger(path string, capacity int) (*SQLiteLedger, error) {
	if capacity <= 0 {
		capacity = DefaultLedgerCapacity
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open ledger database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS operations (
		step        INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp   DATETIME NOT NULL,
		description TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize ledger schema: %w", err)
	}

	return &SQLiteLedger{db: db, capacity: capacity}, nil
}

// Record appends an operation and trims beyond capacity.
func (l *SQLiteLedger) Record(description string) error {
	if _, err := l.db.Exec(
		`INSERT INTO operations (timestamp, description) VALUES (?, ?)`,
		time.Now().UTC(), description,
	); err != nil {
		return fmt.Errorf("record operation: %w", err)
	}

	if _, err := l.db.Exec(
		`DELETE FROM operations WHERE step NOT IN (
			SELECT step FROM operations ORDER BY step DESC LIMIT ?
		)`, l.capacity,
	); err != nil {
		return fmt.Errorf("trim ledger: %w", err)
	}

	return nil
}

// History returns the retained operations, oldest first.
func (l *SQLiteLedger) History() ([]OperationRecord, error) {
	rows, err := l.db.Query(`SELECT step, timestamp, description FROM operations ORDER BY step ASC`)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var records []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		if err := rows.Scan(&rec.Step, &rec.Timestamp, &rec.Description); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Clear drops all retained operations.
func (l *SQLiteLedger) Clear() error {
	if _, err := l.db.Exec(`DELETE FROM operations`); err != nil {
		return fmt.Errorf("clear ledger: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
