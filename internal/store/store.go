// Package store persists daily yield quotes to a configurable destination.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/config"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/model"
)

// Store persists daily yield quotes.
type Store interface {
	// Append persists one quote.
	Append(ctx context.Context, q model.Quote) error

	// Dates reports which dates inside r are already persisted, keyed by
	// UTC midnight.
	Dates(ctx context.Context, r dates.Range) (map[time.Time]bool, error)

	// Close flushes and releases the destination.
	Close() error
}

// Open creates the store selected by the configuration.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Store.Backend {
	case config.BackendCSV:
		return OpenCSV(cfg.SaveFp)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}
