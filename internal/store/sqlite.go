// Package store persists events, mappings and dynamics in a SQLite file.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	cusipmap "github.com/RxDataLab/go-cusipmap"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cik TEXT,
		form TEXT,
		filing_date TEXT,
		accession_number TEXT,
		company_name TEXT,
		cusip9 TEXT,
		cusip8 TEXT,
		cusip6 TEXT,
		parse_method TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS events_cik_cusip8 ON events (cik, cusip8)`,
	`CREATE TABLE IF NOT EXISTS mapping (
		cik INTEGER,
		cusip6 TEXT,
		cusip8 TEXT,
		PRIMARY KEY (cik, cusip6, cusip8)
	)`,
	`CREATE TABLE IF NOT EXISTS dynamics (
		cik INTEGER,
		cusip6 TEXT,
		cusip8 TEXT,
		cusip9 TEXT,
		first_seen TEXT,
		last_seen TEXT,
		filings_count INTEGER,
		forms TEXT,
		months_active INTEGER,
		most_recent_accession TEXT,
		most_recent_form TEXT,
		most_recent_filing_date TEXT,
		valid_check_digit INTEGER,
		parse_methods TEXT,
		fallback_filings INTEGER,
		PRIMARY KEY (cik, cusip8)
	)`,
}

// SQLiteStore is a SQLite sink for pipeline outputs.
type SQLiteStore struct {
	DB *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one writer; parsing never touches the database concurrently
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to sqlite database: %w", err)
	}

	s := &SQLiteStore{DB: db}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates missing tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("failed to set WAL mode: %w", err)
	}
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// SaveEvents appends events.
func (s *SQLiteStore) SaveEvents(ctx context.Context, events []cusipmap.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (cik, form, filing_date, accession_number, company_name, cusip9, cusip8, cusip6, parse_method)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		_, err := stmt.ExecContext(ctx, e.CIK, e.Form, e.FilingDate, e.AccessionNumber, e.CompanyName,
			e.CUSIP9, e.CUSIP8, e.CUSIP6, e.ParseMethod)
		if err != nil {
			return fmt.Errorf("failed to insert event: %w", err)
		}
	}

	return tx.Commit()
}

// LoadEvents returns every stored event in insertion order.
func (s *SQLiteStore) LoadEvents(ctx context.Context) ([]cusipmap.Event, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT cik, form, filing_date, accession_number, company_name, cusip9, cusip8, cusip6, parse_method
		FROM events ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []cusipmap.Event
	for rows.Next() {
		var e cusipmap.Event
		if err := rows.Scan(&e.CIK, &e.Form, &e.FilingDate, &e.AccessionNumber, &e.CompanyName,
			&e.CUSIP9, &e.CUSIP8, &e.CUSIP6, &e.ParseMethod); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	return events, nil
}

// ReplaceMapping swaps the stored mapping for rows.
func (s *SQLiteStore) ReplaceMapping(ctx context.Context, rows []cusipmap.MappingRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM mapping"); err != nil {
		return fmt.Errorf("failed to clear mapping: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO mapping (cik, cusip6, cusip8) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare mapping insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.CIK, r.CUSIP6, r.CUSIP8); err != nil {
			return fmt.Errorf("failed to insert mapping row: %w", err)
		}
	}

	return tx.Commit()
}

// Mapping returns the stored mapping sorted by CIK then cusip8.
func (s *SQLiteStore) Mapping(ctx context.Context) ([]cusipmap.MappingRow, error) {
	rows, err := s.DB.QueryContext(ctx, "SELECT cik, cusip6, cusip8 FROM mapping ORDER BY cik, cusip8, cusip6")
	if err != nil {
		return nil, fmt.Errorf("failed to query mapping: %w", err)
	}
	defer rows.Close()

	var out []cusipmap.MappingRow
	for rows.Next() {
		var r cusipmap.MappingRow
		if err := rows.Scan(&r.CIK, &r.CUSIP6, &r.CUSIP8); err != nil {
			return nil, fmt.Errorf("failed to scan mapping row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mapping: %w", err)
	}
	return out, nil
}

// ReplaceDynamics swaps the stored dynamics for rows.
func (s *SQLiteStore) ReplaceDynamics(ctx context.Context, rows []cusipmap.DynamicsRow) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM dynamics"); err != nil {
		return fmt.Errorf("failed to clear dynamics: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dynamics (cik, cusip6, cusip8, cusip9, first_seen, last_seen, filings_count, forms,
			months_active, most_recent_accession, most_recent_form, most_recent_filing_date,
			valid_check_digit, parse_methods, fallback_filings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare dynamics insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		_, err := stmt.ExecContext(ctx, r.CIK, r.CUSIP6, r.CUSIP8, r.CUSIP9, r.FirstSeen, r.LastSeen,
			r.FilingsCount, r.Forms, r.MonthsActive, r.MostRecentAccession, r.MostRecentForm,
			r.MostRecentFilingDate, r.ValidCheckDigit, r.ParseMethods, r.FallbackFilings)
		if err != nil {
			return fmt.Errorf("failed to insert dynamics row: %w", err)
		}
	}

	return tx.Commit()
}

// DynamicsCount returns the number of stored dynamics rows.
func (s *SQLiteStore) DynamicsCount(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM dynamics").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dynamics: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}
