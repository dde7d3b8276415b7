// Package yieldapi fetches daily US 10-year treasury yield candles from a
// configurable HTTP endpoint.
package yieldapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"time"

	"resty.dev/v3"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/dates"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/model"
	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/ratelimit"
)

const defaultProdCode = "US10YR.OTC"

// Config holds the settings for the yield endpoint client.
type Config struct {
	// BaseURL is the candle endpoint.
	BaseURL string

	// ProdCode identifies the instrument in both the request and the
	// response payload.
	ProdCode string

	// Params are extra query parameters sent with every request.
	Params map[string]string

	// Timeout bounds a single HTTP request, including retries' individual
	// attempts.
	Timeout time.Duration

	// MaxRetries is the HTTP-level retry budget per fetch.
	MaxRetries int

	// Limiter paces requests across all workers. Nil means unlimited.
	Limiter *ratelimit.Limiter
}

// Client requests daily yield candles. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *resty.Client
}

// NewClient creates a client for the yield endpoint.
func NewClient(cfg Config) *Client {
	if cfg.ProdCode == "" {
		cfg.ProdCode = defaultProdCode
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	return &Client{
		cfg:  cfg,
		http: newHTTPClient(cfg.BaseURL, cfg.Timeout, cfg.MaxRetries, cfg.Limiter),
	}
}

// candleResponse mirrors the endpoint payload: a list of field names plus,
// per product code, rows of numbers positionally matching those fields.
type candleResponse struct {
	Data struct {
		Fields []string               `json:"fields"`
		Candle map[string]candleLines `json:"candle"`
	} `json:"data"`
}

type candleLines struct {
	Lines [][]json.Number `json:"lines"`
}

// Field names are delivered with a px affix (open_px, px_change_rate, ...)
// that the original feed used for price columns.
var pxAffix = regexp.MustCompile(`_?px_?`)

// quoteColumns are the normalized columns a usable candle line must carry.
var quoteColumns = []string{"tick_at", "open", "close", "high", "low", "change", "change_rate"}

// FetchDay retrieves the yield candle for one calendar date. It returns
// ErrNoData when the endpoint has no candle inside [day, day+24h), which is
// normal for weekends and market holidays.
func (c *Client) FetchDay(ctx context.Context, day time.Time) (model.Quote, error) {
	day = dates.DateOf(day)

	if err := c.cfg.Limiter.Wait(ctx); err != nil {
		return model.Quote{}, fmt.Errorf("rate limiter: %w", err)
	}

	params := make(map[string]string, len(c.cfg.Params)+3)
	for k, v := range c.cfg.Params {
		params[k] = v
	}
	params["prod_code"] = c.cfg.ProdCode
	params["tick_count"] = "1"
	params["tick_at"] = strconv.FormatInt(day.Unix(), 10)

	var payload candleResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&payload).
		Get("")
	if err != nil {
		return model.Quote{}, classifyRequestError(err)
	}
	if !resp.IsSuccess() {
		return model.Quote{}, ClassifyHTTPError(resp.StatusCode())
	}

	return c.quoteForDay(&payload, day)
}

// quoteForDay extracts the candle line matching the requested date.
func (c *Client) quoteForDay(payload *candleResponse, day time.Time) (model.Quote, error) {
	if len(payload.Data.Fields) == 0 {
		return model.Quote{}, NewValidationError("response has no fields")
	}

	idx := normalizeFields(payload.Data.Fields)
	for _, col := range quoteColumns {
		if _, ok := idx[col]; !ok {
			return model.Quote{}, NewValidationError(fmt.Sprintf("response fields missing %q", col))
		}
	}

	entry, ok := payload.Data.Candle[c.cfg.ProdCode]
	if !ok {
		return model.Quote{}, NewValidationError(fmt.Sprintf("response has no candle for %s", c.cfg.ProdCode))
	}

	for _, line := range entry.Lines {
		if len(line) != len(payload.Data.Fields) {
			return model.Quote{}, NewValidationError(fmt.Sprintf(
				"candle line has %d values for %d fields", len(line), len(payload.Data.Fields)))
		}

		ts, err := lineValue(line, idx, "tick_at")
		if err != nil {
			return model.Quote{}, err
		}
		if !dates.DateOf(time.Unix(int64(ts), 0)).Equal(day) {
			continue
		}

		quote := model.Quote{Date: day}
		for col, dst := range map[string]*float64{
			"open":        &quote.Open,
			"close":       &quote.Close,
			"high":        &quote.High,
			"low":         &quote.Low,
			"change":      &quote.Change,
			"change_rate": &quote.ChangeRate,
		} {
			v, err := lineValue(line, idx, col)
			if err != nil {
				return model.Quote{}, err
			}
			*dst = v
		}
		return quote, nil
	}

	return model.Quote{}, fmt.Errorf("%s: %w", day.Format(dates.Layout), ErrNoData)
}

// normalizeFields strips the px affix and maps each normalized field name to
// its column index, so open_px becomes open and px_change_rate becomes
// change_rate.
func normalizeFields(fields []string) map[string]int {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[pxAffix.ReplaceAllString(f, "")] = i
	}
	return idx
}

func lineValue(line []json.Number, idx map[string]int, name string) (float64, error) {
	v, err := line[idx[name]].Float64()
	if err != nil {
		return 0, NewValidationError(fmt.Sprintf("field %s is not numeric: %v", name, err))
	}
	return v, nil
}

// classifyRequestError wraps transport-level failures into the fetch error
// taxonomy.
func classifyRequestError(err error) error {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return NewTimeoutError(err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTimeoutError(err)
	}
	return NewNetworkError(err)
}
