package storage

import (
	"sync"
	"time"
)

// MockStorage implements Interface in memory for testing
type MockStorage struct {
	mu            sync.Mutex
	data          *Data
	saveError     error
	loadError     error
	saveCallCount int
	loadCallCount int
	closed        bool
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{data: &Data{Prices: make(map[string]PriceRecord)}}
}

func (m *MockStorage) RecordPrices(at time.Time, prices map[string]float64, missing []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	merge(m.data, at, prices, missing)
	m.saveCallCount++
	return m.saveError
}

func (m *MockStorage) LastPrice(ticker string) (PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lookup(m.data, ticker)
}

func (m *MockStorage) Prices() map[string]PriceRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyRecords(m.data.Prices)
}

func (m *MockStorage) LastMissing() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.data.LastMissing...)
}

func (m *MockStorage) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	return m.saveError
}

func (m *MockStorage) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCallCount++
	return m.loadError
}

func (m *MockStorage) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Test helper methods

func (m *MockStorage) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

func (m *MockStorage) GetSaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}

func (m *MockStorage) GetLoadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCallCount
}
