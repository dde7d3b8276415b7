// Package crawler runs the date-range pipeline: a dispatcher turns the range
// into one work item per date, a pool of workers fetches them concurrently,
// and a single writer persists results as they arrive.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/logging"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/store"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/yieldapi"
)

// progressEvery controls how often the writer logs progress.
const progressEvery = 25

// Config holds the crawl settings.
type Config struct {
	// NumCrawler is the number of concurrent fetch workers.
	NumCrawler int

	// Force re-fetches dates that are already persisted.
	Force bool
}

// Crawler coordinates the fetch workers and the writer.
type Crawler struct {
	cfg     Config
	fetcher Fetcher
	store   store.Store
	logger  zerolog.Logger
}

// New creates a Crawler with the given fetcher and store.
func New(cfg Config, f Fetcher, st store.Store) *Crawler {
	if cfg.NumCrawler < 1 {
		cfg.NumCrawler = 1
	}
	return &Crawler{
		cfg:     cfg,
		fetcher: f,
		store:   st,
		logger:  logging.New("crawler"),
	}
}

// Run crawls every date in r. Dates already persisted are skipped unless
// Force is set. A failed date is recorded in the returned Stats and never
// aborts the run; Run only returns an error when the resume lookup fails or
// the context is canceled.
func (c *Crawler) Run(ctx context.Context, r dates.Range) (Stats, error) {
	var stats Stats
	start := time.Now()

	days := r.Days()
	if len(days) == 0 {
		c.logger.Info().Stringer("range", r).Msg("empty date range, nothing to crawl")
		return stats, nil
	}

	skip := make(map[time.Time]bool)
	if !c.cfg.Force {
		var err error
		skip, err = c.store.Dates(ctx, r)
		if err != nil {
			return stats, fmt.Errorf("loading persisted dates: %w", err)
		}
	}

	pending := make([]time.Time, 0, len(days))
	for _, day := range days {
		if skip[day] {
			stats.Skipped++
			continue
		}
		pending = append(pending, day)
	}
	stats.Dispatched = len(pending)

	c.logger.Info().
		Stringer("range", r).
		Int("dates", len(days)).
		Int("skipped", stats.Skipped).
		Int("workers", c.cfg.NumCrawler).
		Msg("starting crawl")

	work := make(chan WorkItem, len(pending))
	results := make(chan FetchResult, len(pending))

	// Dispatcher: one work item per pending date.
	go func() {
		defer close(work)
		for _, day := range pending {
			select {
			case work <- WorkItem{Date: day}:
			case <-ctx.Done():
				return
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < c.cfg.NumCrawler; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c.worker(ctx, id, work, results)
		}(i)
	}

	// Close the result channel once all workers are done.
	go func() {
		wg.Wait()
		close(results)
	}()

	// Single writer: consume results as they arrive and persist successes.
	// Writes run on a context detached from cancellation, so results already
	// fetched still land when the run is interrupted mid-drain.
	writeCtx := context.WithoutCancel(ctx)
	processed := 0
	for res := range results {
		processed++
		switch {
		case res.NoData:
			stats.NoData++
		case res.Err != nil:
			stats.Failed++
			stats.Failures = append(stats.Failures, Failure{Date: res.Date, Err: res.Err})
		default:
			if err := c.store.Append(writeCtx, res.Quote); err != nil {
				writeErrors.Inc()
				stats.Failed++
				stats.Failures = append(stats.Failures, Failure{Date: res.Date, Err: err})
				c.logger.Error().
					Err(err).
					Str("date", res.Date.Format(dates.Layout)).
					Msg("write failed")
			} else {
				recordsWritten.Inc()
				stats.Written++
			}
		}

		if processed%progressEvery == 0 {
			c.logger.Info().
				Int("processed", processed).
				Int("total", stats.Dispatched).
				Msg("crawl progress")
		}
	}

	c.logger.Info().
		Int("dispatched", stats.Dispatched).
		Int("written", stats.Written).
		Int("no_data", stats.NoData).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Dur("duration", time.Since(start)).
		Msg("crawl finished")

	if err := ctx.Err(); err != nil {
		return stats, err
	}
	return stats, nil
}

func (c *Crawler) worker(ctx context.Context, id int, work <-chan WorkItem, results chan<- FetchResult) {
	logger := c.logger.With().Int("worker", id).Logger()

	for item := range work {
		start := time.Now()
		quote, err := c.fetcher.FetchDay(ctx, item.Date)
		fetchDuration.Observe(time.Since(start).Seconds())

		res := FetchResult{Date: item.Date, Quote: quote, Err: err}
		switch {
		case err == nil:
			fetchesTotal.WithLabelValues("success").Inc()
		case errors.Is(err, yieldapi.ErrNoData):
			res.NoData = true
			res.Err = nil
			fetchesTotal.WithLabelValues("no_data").Inc()
			logger.Debug().
				Str("date", item.Date.Format(dates.Layout)).
				Msg("no data for date")
		default:
			fetchesTotal.WithLabelValues("error").Inc()
			logger.Warn().
				Err(err).
				Str("date", item.Date.Format(dates.Layout)).
				Msg("fetch failed")
		}
		results <- res
	}
}
