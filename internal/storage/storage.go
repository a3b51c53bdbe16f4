package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// JSONStorage keeps records in memory and writes them to a JSON file.
type JSONStorage struct {
	mu       sync.RWMutex
	filepath string
	data     *Data
}

// Data is the on-disk document.
type Data struct {
	Prices      map[string]PriceRecord `json:"prices"`
	LastMissing []string               `json:"last_missing"`
	LastRun     time.Time              `json:"last_run"`
	LastUpdated time.Time              `json:"last_updated"`
}

// NewJSONStorage opens path, loading it when it already exists.
func NewJSONStorage(path string) (*JSONStorage, error) {
	s := &JSONStorage{
		filepath: path,
		data:     &Data{Prices: make(map[string]PriceRecord)},
	}

	if _, err := os.Stat(path); err == nil {
		if err := s.Load(); err != nil {
			return nil, fmt.Errorf("loading storage: %w", err)
		}
	}

	return s, nil
}

// Load replaces the in-memory records with the file contents.
func (s *JSONStorage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.filepath) // #nosec G304 -- path comes from configuration
	if err != nil {
		return err
	}

	data := &Data{}
	if err := json.Unmarshal(raw, data); err != nil {
		return fmt.Errorf("decoding %s: %w", s.filepath, err)
	}
	if data.Prices == nil {
		data.Prices = make(map[string]PriceRecord)
	}
	s.data = data
	return nil
}

// Save writes the records atomically.
func (s *JSONStorage) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *JSONStorage) saveLocked() error {
	s.data.LastUpdated = time.Now().UTC()

	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.filepath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	// Write to temp file first
	tmpFile := s.filepath + ".tmp"
	if err := os.WriteFile(tmpFile, raw, 0o600); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpFile, s.filepath)
}

// RecordPrices merges a refresh result and saves.
func (s *JSONStorage) RecordPrices(at time.Time, prices map[string]float64, missing []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merge(s.data, at, prices, missing)
	return s.saveLocked()
}

// LastPrice returns the record for ticker or ErrNoPriceRecord.
func (s *JSONStorage) LastPrice(ticker string) (PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.data, ticker)
}

// Prices returns a copy of every record.
func (s *JSONStorage) Prices() map[string]PriceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyRecords(s.data.Prices)
}

// LastMissing returns the tickers that failed on the latest run.
func (s *JSONStorage) LastMissing() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.data.LastMissing...)
}

// Close is a no-op; every write is already on disk.
func (s *JSONStorage) Close() error { return nil }

func merge(d *Data, at time.Time, prices map[string]float64, missing []string) {
	for ticker, price := range prices {
		if price <= 0 {
			continue
		}
		d.Prices[strings.ToUpper(ticker)] = PriceRecord{Price: price, At: at}
	}
	d.LastMissing = append([]string(nil), missing...)
	d.LastRun = at
}

func lookup(d *Data, ticker string) (PriceRecord, error) {
	rec, ok := d.Prices[strings.ToUpper(strings.TrimSpace(ticker))]
	if !ok {
		return PriceRecord{}, fmt.Errorf("%w for %s", ErrNoPriceRecord, ticker)
	}
	return rec, nil
}

func copyRecords(in map[string]PriceRecord) map[string]PriceRecord {
	out := make(map[string]PriceRecord, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
