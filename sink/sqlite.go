package sink

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/foomo/gatherer/vo"
)

const recordsSchema = `
CREATE TABLE IF NOT EXISTS records (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	source_url   TEXT NOT NULL,
	extracted_at TEXT NOT NULL,
	fields       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_records_source_url ON records(source_url);
`

// SQLite persists records into a local database file, fields as a JSON
// column. One writer, WAL mode.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	db, errOpen := sql.Open("sqlite", path+"?mode=rwc")
	if errOpen != nil {
		return nil, fmt.Errorf("open record store: %w", errOpen)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, errWAL := db.Exec("PRAGMA journal_mode=WAL"); errWAL != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", errWAL)
	}
	if _, errSchema := db.Exec(recordsSchema); errSchema != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create records table: %w", errSchema)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Write(record vo.Record) error {
	fieldsJSON, errMarshal := json.Marshal(record.Fields)
	if errMarshal != nil {
		return fmt.Errorf("marshal record fields: %w", errMarshal)
	}
	_, errExec := s.db.Exec(
		"INSERT INTO records (source_url, extracted_at, fields) VALUES (?, ?, ?)",
		record.SourceURL,
		record.ExtractedAt.Format(time.RFC3339),
		string(fieldsJSON),
	)
	if errExec != nil {
		return fmt.Errorf("insert record: %w", errExec)
	}
	return nil
}

func (s *SQLite) Flush() error { return nil }

func (s *SQLite) Close() error { return s.db.Close() }

// Count returns the number of stored records.
func (s *SQLite) Count() (int, error) {
	row := s.db.QueryRow("SELECT COUNT(*) FROM records")
	count := 0
	if errScan := row.Scan(&count); errScan != nil {
		return 0, errScan
	}
	return count, nil
}
