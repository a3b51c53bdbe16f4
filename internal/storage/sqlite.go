package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStorage keeps every refreshed price as history in a SQLite database.
// The latest row per ticker is its last known price.
type SQLiteStorage struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStorage opens (or creates) the database and runs migrations.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS price_history (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ticker    TEXT    NOT NULL,
			price     REAL    NOT NULL,
			timestamp INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_ticker_ts ON price_history(ticker, timestamp)`,

		`CREATE TABLE IF NOT EXISTS refresh_runs (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			missing   TEXT
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// RecordPrices inserts one row per positive price and one run row, in a
// single transaction.
func (s *SQLiteStorage) RecordPrices(at time.Time, prices map[string]float64, missing []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ts := at.UnixMilli()
	for ticker, price := range prices {
		if price <= 0 {
			continue
		}
		if _, err := tx.Exec(`INSERT INTO price_history (ticker, price, timestamp) VALUES (?, ?, ?)`,
			strings.ToUpper(ticker), price, ts); err != nil {
			return fmt.Errorf("insert price for %s: %w", ticker, err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO refresh_runs (timestamp, missing) VALUES (?, ?)`,
		ts, strings.Join(missing, ",")); err != nil {
		return fmt.Errorf("insert refresh run: %w", err)
	}
	return tx.Commit()
}

// LastPrice returns the newest row for ticker or ErrNoPriceRecord.
func (s *SQLiteStorage) LastPrice(ticker string) (PriceRecord, error) {
	var price float64
	var ts int64
	err := s.db.QueryRow(`SELECT price, timestamp FROM price_history
		WHERE ticker = ? ORDER BY timestamp DESC, id DESC LIMIT 1`,
		strings.ToUpper(strings.TrimSpace(ticker))).Scan(&price, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return PriceRecord{}, fmt.Errorf("%w for %s", ErrNoPriceRecord, ticker)
	}
	if err != nil {
		return PriceRecord{}, err
	}
	return PriceRecord{Price: price, At: time.UnixMilli(ts).UTC()}, nil
}

// Prices returns the newest row of every ticker. Query errors yield an empty map.
func (s *SQLiteStorage) Prices() map[string]PriceRecord {
	out := make(map[string]PriceRecord)
	rows, err := s.db.Query(`SELECT ticker, price, timestamp FROM price_history
		ORDER BY timestamp ASC, id ASC`)
	if err != nil {
		return out
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var ticker string
		var price float64
		var ts int64
		if err := rows.Scan(&ticker, &price, &ts); err != nil {
			return out
		}
		out[ticker] = PriceRecord{Price: price, At: time.UnixMilli(ts).UTC()}
	}
	return out
}

// LastMissing returns the tickers that failed on the latest run.
func (s *SQLiteStorage) LastMissing() []string {
	var missing sql.NullString
	err := s.db.QueryRow(`SELECT missing FROM refresh_runs ORDER BY id DESC LIMIT 1`).Scan(&missing)
	if err != nil || !missing.Valid || missing.String == "" {
		return nil
	}
	return strings.Split(missing.String, ",")
}

// Save is a no-op; every write commits immediately.
func (s *SQLiteStorage) Save() error { return nil }

// Load checks the database is reachable.
func (s *SQLiteStorage) Load() error { return s.db.Ping() }

// Close releases the database.
func (s *SQLiteStorage) Close() error { return s.db.Close() }
