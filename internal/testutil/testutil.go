// Package testutil provides mock implementations for testing the crawl
// pipeline.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/model"
)

// MockFetcher is a mock implementation of the crawler.Fetcher interface.
type MockFetcher struct {
	FetchDayFunc func(ctx context.Context, day time.Time) (model.Quote, error)

	mu    sync.Mutex
	calls []time.Time
}

// FetchDay implements the Fetcher interface and records the requested date.
func (m *MockFetcher) FetchDay(ctx context.Context, day time.Time) (model.Quote, error) {
	m.mu.Lock()
	m.calls = append(m.calls, day)
	m.mu.Unlock()

	if m.FetchDayFunc != nil {
		return m.FetchDayFunc(ctx, day)
	}
	return model.Quote{Date: day}, nil
}

// Calls returns the dates FetchDay was invoked with, in call order.
func (m *MockFetcher) Calls() []time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]time.Time, len(m.calls))
	copy(out, m.calls)
	return out
}

// NewMockFetcher creates a mock fetcher returning a fixed quote per date,
// or err for every date when err is non-nil.
func NewMockFetcher(value float64, err error) *MockFetcher {
	return &MockFetcher{
		FetchDayFunc: func(_ context.Context, day time.Time) (model.Quote, error) {
			if err != nil {
				return model.Quote{}, err
			}
			return model.Quote{
				Date: day,
				Open: value, Close: value, High: value, Low: value,
			}, nil
		},
	}
}

// MockStore is an in-memory store.Store. AppendErr, when set, makes Append
// fail for the given dates.
type MockStore struct {
	AppendErr map[time.Time]error

	mu     sync.Mutex
	quotes []model.Quote
	closed bool
}

// NewMockStore creates an empty in-memory store seeded with the given
// already-persisted quotes.
func NewMockStore(seed ...model.Quote) *MockStore {
	return &MockStore{quotes: seed}
}

// Append implements the Store interface.
func (m *MockStore) Append(_ context.Context, q model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.AppendErr[dates.DateOf(q.Date)]; err != nil {
		return err
	}
	m.quotes = append(m.quotes, q)
	return nil
}

// Dates implements the Store interface.
func (m *MockStore) Dates(_ context.Context, r dates.Range) (map[time.Time]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[time.Time]bool)
	for _, q := range m.quotes {
		if day := dates.DateOf(q.Date); r.Contains(day) {
			seen[day] = true
		}
	}
	return seen, nil
}

// Close implements the Store interface.
func (m *MockStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Quotes returns the persisted quotes in append order.
func (m *MockStore) Quotes() []model.Quote {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Quote, len(m.quotes))
	copy(out, m.quotes)
	return out
}

// Closed reports whether Close was called.
func (m *MockStore) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
