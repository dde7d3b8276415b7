// Command us10yr-crawler downloads daily US 10-year treasury yield quotes
// for a date range and appends them to a local store.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/config"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/crawler"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/logging"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/ratelimit"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/store"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/yieldapi"
)

type cliOptions struct {
	start      string
	end        string
	configPath string
	force      bool
}

func main() {
	var opts cliOptions
	pflag.StringVarP(&opts.start, "start", "s", "", "start date (YYYYMMDD, inclusive)")
	pflag.StringVarP(&opts.end, "end", "e", "", "end date (YYYYMMDD, exclusive)")
	pflag.StringVar(&opts.configPath, "config", "", "path to config file")
	pflag.BoolVar(&opts.force, "force", false, "re-fetch dates that are already persisted")
	pflag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts cliOptions) error {
	if opts.start == "" || opts.end == "" {
		return errors.New("both --start and --end are required")
	}
	r, err := dates.ParseRange(opts.start, opts.end)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if opts.force {
		cfg.Force = true
	}

	logger := logging.Setup(logging.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	logger = logger.With().Str("run_id", uuid.NewString()).Logger()
	zlog.Logger = logger

	// Cancel the crawl on interrupt so the writer can flush what it has.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn().Msg("received interrupt signal, shutting down")
		cancel()
	}()

	st, err := store.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("closing store")
		}
	}()

	if cfg.Metrics.Port > 0 {
		go serveMetrics(cfg.Metrics.Port, logger)
	}

	client := yieldapi.NewClient(yieldapi.Config{
		BaseURL:    cfg.API.BaseURL,
		ProdCode:   cfg.API.ProdCode,
		Params:     cfg.API.Params,
		Timeout:    cfg.API.Timeout,
		MaxRetries: cfg.API.MaxRetries,
		Limiter:    ratelimit.New(cfg.API.RateLimit),
	})

	c := crawler.New(crawler.Config{
		NumCrawler: cfg.NumCrawler,
		Force:      cfg.Force,
	}, client, st)

	stats, err := c.Run(ctx, r)
	if err != nil {
		return fmt.Errorf("crawl aborted: %w", err)
	}

	for _, f := range stats.Failures {
		logger.Warn().
			Str("date", f.Date.Format(dates.Layout)).
			Err(f.Err).
			Msg("date not persisted")
	}
	logger.Info().
		Int("written", stats.Written).
		Int("no_data", stats.NoData).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Msg("done")
	return nil
}

func serveMetrics(port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	addr := fmt.Sprintf(":%d", port)
	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error().Err(err).Msg("metrics server stopped")
	}
}
