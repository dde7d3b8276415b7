package crawler

import (
	"context"
	"time"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/model"
)

// Fetcher retrieves the yield quote for a single calendar date.
type Fetcher interface {
	FetchDay(ctx context.Context, day time.Time) (model.Quote, error)
}

// WorkItem is one date handed to the fetch workers.
type WorkItem struct {
	Date time.Time
}

// FetchResult is the outcome of fetching one date. NoData marks dates the
// endpoint has no candle for, such as weekends and market holidays.
type FetchResult struct {
	Date   time.Time
	Quote  model.Quote
	NoData bool
	Err    error
}

// Failure records a date whose fetch or write failed.
type Failure struct {
	Date time.Time
	Err  error
}

// Stats summarizes one crawl run. In a completed run every dispatched date
// lands in exactly one of Written, NoData, or Failed.
type Stats struct {
	Dispatched int
	Written    int
	NoData     int
	Failed     int
	Skipped    int
	Failures   []Failure
}
