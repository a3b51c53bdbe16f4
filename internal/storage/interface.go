// Package storage persists the last known price of every refreshed ticker.
package storage

import (
	"path/filepath"
	"strings"
	"time"
)

// PriceRecord is the most recent successful price for one ticker.
type PriceRecord struct {
	Price float64   `json:"price"`
	At    time.Time `json:"at"`
}

// Interface defines the contract for last-known price persistence.
//
// Implementations must be safe for concurrent use.
type Interface interface {
	// RecordPrices merges one refresh result. Missing tickers keep their
	// previous record.
	RecordPrices(at time.Time, prices map[string]float64, missing []string) error
	LastPrice(ticker string) (PriceRecord, error)
	Prices() map[string]PriceRecord
	LastMissing() []string

	// Data persistence
	Save() error
	Load() error
	Close() error
}

// NewStorage picks SQLite for .db, .sqlite and .sqlite3 paths and a JSON file
// otherwise.
func NewStorage(path string) (Interface, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStorage(path)
	default:
		return NewJSONStorage(path)
	}
}

// Ensure implementations satisfy Interface
var (
	_ Interface = (*JSONStorage)(nil)
	_ Interface = (*SQLiteStorage)(nil)
	_ Interface = (*MockStorage)(nil)
)
