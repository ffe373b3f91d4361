package collector

// SQLite output: one reading per signal per row

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/tturner/farmreg/internal/catalog"
)

const createReadingsSQL = `
CREATE TABLE IF NOT EXISTS readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp TEXT NOT NULL,
    run_id TEXT NOT NULL,
    signal TEXT NOT NULL,
    value REAL,
    unit TEXT,
    samples INTEGER NOT NULL
)`

const createReadingsIndexSQL = `CREATE INDEX IF NOT EXISTS readings_signal_ts ON readings(signal, timestamp)`

const insertReadingSQL = `INSERT INTO readings(timestamp, run_id, signal, value, unit, samples) VALUES(?, ?, ?, ?, ?, ?)`

// SQLiteSink stores rows in a SQLite database. A signal with no successful
// sample is stored with a NULL value.
type SQLiteSink struct {
	db      *sql.DB
	signals []*catalog.Signal
}

// OpenSQLite opens or creates the database at path and its readings table.
func OpenSQLite(path string, signals []*catalog.Signal) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	for _, stmt := range []string{createReadingsSQL, createReadingsIndexSQL} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("create readings table in %s: %w", path, err)
		}
	}
	return &SQLiteSink{db: db, signals: signals}, nil
}

// WriteRow inserts one reading per signal in a single transaction.
func (s *SQLiteSink) WriteRow(row Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(insertReadingSQL)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ts := row.Timestamp.Format(TimestampLayout)
	for _, sig := range s.signals {
		var value sql.NullFloat64
		if v := row.Values[sig.Name]; v != nil {
			value = sql.NullFloat64{Float64: *v, Valid: true}
		}
		if _, err := stmt.Exec(ts, row.RunID, sig.Name, value, sig.Unit, row.Samples); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert %s: %w", sig.Name, err)
		}
	}
	return tx.Commit()
}

// DB exposes the database handle for queries.
func (s *SQLiteSink) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
