package yieldapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/ratelimit"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// quoteBody builds the candle payload the endpoint returns for one date.
func quoteBody(prodCode string, tickAt int64) string {
	return fmt.Sprintf(`{
		"data": {
			"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "px_change", "px_change_rate"],
			"candle": {
				%q: {"lines": [[%d, 3.792, 3.794, 3.811, 3.75, 0.038, 1.01]]}
			}
		}
	}`, prodCode, tickAt)
}

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		BaseURL:  baseURL,
		ProdCode: "US10YR.OTC",
		Timeout:  5 * time.Second,
	})
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://localhost"})

	if c.cfg.ProdCode != defaultProdCode {
		t.Errorf("ProdCode = %q, want %q", c.cfg.ProdCode, defaultProdCode)
	}
	if c.cfg.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want %v", c.cfg.Timeout, 15*time.Second)
	}
	if c.http == nil {
		t.Error("http client is nil")
	}
}

func TestFetchDay_Success(t *testing.T) {
	target := day(2023, time.January, 3)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(quoteBody("US10YR.OTC", target.Unix())))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(server.URL)
	quote, err := client.FetchDay(context.Background(), target)
	if err != nil {
		t.Fatalf("FetchDay() returned unexpected error: %v", err)
	}

	if !quote.Date.Equal(target) {
		t.Errorf("Date = %v, want %v", quote.Date, target)
	}
	if quote.Open != 3.792 {
		t.Errorf("Open = %v, want 3.792", quote.Open)
	}
	if quote.Close != 3.794 {
		t.Errorf("Close = %v, want 3.794", quote.Close)
	}
	if quote.High != 3.811 {
		t.Errorf("High = %v, want 3.811", quote.High)
	}
	if quote.Low != 3.75 {
		t.Errorf("Low = %v, want 3.75", quote.Low)
	}
	if quote.Change != 0.038 {
		t.Errorf("Change = %v, want 0.038", quote.Change)
	}
	if quote.ChangeRate != 1.01 {
		t.Errorf("ChangeRate = %v, want 1.01", quote.ChangeRate)
	}
}

func TestFetchDay_VerifyQueryParams(t *testing.T) {
	target := day(2023, time.January, 3)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("prod_code"); got != "US10YR.OTC" {
			t.Errorf("prod_code = %q, want US10YR.OTC", got)
		}
		if got := r.URL.Query().Get("tick_count"); got != "1" {
			t.Errorf("tick_count = %q, want 1", got)
		}
		if got := r.URL.Query().Get("tick_at"); got != strconv.FormatInt(target.Unix(), 10) {
			t.Errorf("tick_at = %q, want %d", got, target.Unix())
		}
		if got := r.URL.Query().Get("fields"); got != "open_px,close_px" {
			t.Errorf("fields = %q, want open_px,close_px", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(quoteBody("US10YR.OTC", target.Unix())))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := NewClient(Config{
		BaseURL:  server.URL,
		ProdCode: "US10YR.OTC",
		Params:   map[string]string{"fields": "open_px,close_px"},
		Timeout:  5 * time.Second,
	})

	// A mid-day timestamp must be truncated to its date before the request.
	if _, err := client.FetchDay(context.Background(), target.Add(10*time.Hour)); err != nil {
		t.Fatalf("FetchDay() returned unexpected error: %v", err)
	}
}

func TestFetchDay_PicksLineForRequestedDay(t *testing.T) {
	target := day(2023, time.January, 3)
	// The matching line carries a mid-session timestamp, not midnight.
	inDay := target.Add(15 * time.Hour).Unix()
	dayBefore := target.AddDate(0, 0, -1).Unix()

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{
			"data": {
				"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "px_change", "px_change_rate"],
				"candle": {
					"US10YR.OTC": {"lines": [
						[%d, 3.7, 3.71, 3.72, 3.69, 0.01, 0.27],
						[%d, 3.792, 3.794, 3.811, 3.75, 0.038, 1.01]
					]}
				}
			}
		}`, dayBefore, inDay)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(server.URL)
	quote, err := client.FetchDay(context.Background(), target)
	if err != nil {
		t.Fatalf("FetchDay() returned unexpected error: %v", err)
	}

	if quote.Open != 3.792 {
		t.Errorf("Open = %v, want the second line's 3.792", quote.Open)
	}
	if !quote.Date.Equal(target) {
		t.Errorf("Date = %v, want %v", quote.Date, target)
	}
}

func TestFetchDay_NoData(t *testing.T) {
	target := day(2023, time.January, 1)

	tests := []struct {
		name string
		body string
	}{
		{
			name: "no lines",
			body: `{
				"data": {
					"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "px_change", "px_change_rate"],
					"candle": {"US10YR.OTC": {"lines": []}}
				}
			}`,
		},
		{
			name: "line for a different day",
			body: quoteBody("US10YR.OTC", day(2023, time.January, 4).Unix()),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			})

			server := httptest.NewServer(handler)
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.FetchDay(context.Background(), target)
			if err == nil {
				t.Fatal("FetchDay() expected error, got nil")
			}
			if !errors.Is(err, ErrNoData) {
				t.Errorf("FetchDay() error = %v, want ErrNoData", err)
			}
		})
	}
}

func TestFetchDay_HTTPErrors(t *testing.T) {
	tests := []struct {
		name          string
		statusCode    int
		wantType      ErrorType
		wantRetryable bool
	}{
		{"server error", http.StatusInternalServerError, ErrorTypeServer, true},
		{"rate limited", http.StatusTooManyRequests, ErrorTypeRateLimit, true},
		{"not found", http.StatusNotFound, ErrorTypeClient, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			})

			server := httptest.NewServer(handler)
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.FetchDay(context.Background(), day(2023, time.January, 3))
			if err == nil {
				t.Fatal("FetchDay() expected error, got nil")
			}

			var ferr *FetchError
			if !errors.As(err, &ferr) {
				t.Fatalf("FetchDay() error = %T, want *FetchError", err)
			}
			if ferr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", ferr.Type, tt.wantType)
			}
			if ferr.Retryable != tt.wantRetryable {
				t.Errorf("Retryable = %v, want %v", ferr.Retryable, tt.wantRetryable)
			}
			if ferr.StatusCode != tt.statusCode {
				t.Errorf("StatusCode = %d, want %d", ferr.StatusCode, tt.statusCode)
			}
		})
	}
}

func TestFetchDay_RetriesServerErrors(t *testing.T) {
	target := day(2023, time.January, 3)

	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(quoteBody("US10YR.OTC", target.Unix())))
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := NewClient(Config{
		BaseURL:    server.URL,
		ProdCode:   "US10YR.OTC",
		Timeout:    10 * time.Second,
		MaxRetries: 1,
	})

	quote, err := client.FetchDay(context.Background(), target)
	if err != nil {
		t.Fatalf("FetchDay() returned unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
	if quote.Open != 3.792 {
		t.Errorf("Open = %v, want 3.792", quote.Open)
	}
}

func TestFetchDay_MalformedPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{
			name: "no fields",
			body: `{"data": {"fields": [], "candle": {}}}`,
		},
		{
			name: "missing required field",
			body: `{
				"data": {
					"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "px_change"],
					"candle": {"US10YR.OTC": {"lines": []}}
				}
			}`,
		},
		{
			name: "no candle for product code",
			body: `{
				"data": {
					"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "px_change", "px_change_rate"],
					"candle": {"OTHER.CODE": {"lines": []}}
				}
			}`,
		},
		{
			name: "line shorter than fields",
			body: `{
				"data": {
					"fields": ["tick_at", "open_px", "close_px", "high_px", "low_px", "px_change", "px_change_rate"],
					"candle": {"US10YR.OTC": {"lines": [[1672704000, 3.792]]}}
				}
			}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(tt.body))
			})

			server := httptest.NewServer(handler)
			defer server.Close()

			client := newTestClient(server.URL)
			_, err := client.FetchDay(context.Background(), day(2023, time.January, 3))
			if err == nil {
				t.Fatal("FetchDay() expected error, got nil")
			}

			var ferr *FetchError
			if !errors.As(err, &ferr) {
				t.Fatalf("FetchDay() error = %T, want *FetchError", err)
			}
			if ferr.Type != ErrorTypeValidation {
				t.Errorf("Type = %q, want %q", ferr.Type, ErrorTypeValidation)
			}
		})
	}
}

func TestFetchDay_PlainFieldNames(t *testing.T) {
	// Some payload variants deliver field names without the px affix.
	target := day(2023, time.January, 3)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{
			"data": {
				"fields": ["tick_at", "open", "close", "high", "low", "change", "change_rate"],
				"candle": {"US10YR.OTC": {"lines": [[%d, 3.7, 3.71, 3.72, 3.69, 0.01, 0.27]]}}
			}
		}`, target.Unix())
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(server.URL)
	quote, err := client.FetchDay(context.Background(), target)
	if err != nil {
		t.Fatalf("FetchDay() returned unexpected error: %v", err)
	}
	if quote.Close != 3.71 {
		t.Errorf("Close = %v, want 3.71", quote.Close)
	}
}

func TestFetchDay_ContextCancellation(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	client := newTestClient(server.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchDay(ctx, day(2023, time.January, 3))
	if err == nil {
		t.Error("FetchDay() expected error for canceled context, got nil")
	}
}

func TestFetchDay_WaitsForLimiter(t *testing.T) {
	var called atomic.Bool
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called.Store(true)
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	limiter := ratelimit.New(1)
	limiter.Allow() // exhaust the burst so the next Wait must queue

	client := NewClient(Config{
		BaseURL:  server.URL,
		ProdCode: "US10YR.OTC",
		Timeout:  5 * time.Second,
		Limiter:  limiter,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.FetchDay(ctx, day(2023, time.January, 3))
	if err == nil {
		t.Fatal("FetchDay() expected error, got nil")
	}
	if called.Load() {
		t.Error("request reached the server despite the limiter rejecting it")
	}
}

func TestFetchDay_RetryWaitsForLimiter(t *testing.T) {
	target := day(2023, time.January, 3)

	var calls atomic.Int32
	var first, second atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			first.Store(time.Now().UnixNano())
			w.WriteHeader(http.StatusInternalServerError)
		default:
			second.Store(time.Now().UnixNano())
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(quoteBody("US10YR.OTC", target.Unix())))
		}
	})

	server := httptest.NewServer(handler)
	defer server.Close()

	// At half a request per second the retry's token becomes available two
	// seconds after the first attempt drained the burst, well past the one
	// second retry backoff. Without limiter pacing the retry fires early.
	client := NewClient(Config{
		BaseURL:    server.URL,
		ProdCode:   "US10YR.OTC",
		Timeout:    10 * time.Second,
		MaxRetries: 1,
		Limiter:    ratelimit.New(0.5),
	})

	if _, err := client.FetchDay(context.Background(), target); err != nil {
		t.Fatalf("FetchDay() returned unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("server saw %d requests, want 2", got)
	}

	gap := time.Duration(second.Load() - first.Load())
	if gap < 1500*time.Millisecond {
		t.Errorf("retry fired %v after the first attempt, want the limiter to hold it back", gap)
	}
}

func TestNormalizeFields(t *testing.T) {
	fields := []string{"tick_at", "open_px", "px_close", "high_px", "low_px", "px_change", "px_change_rate"}
	idx := normalizeFields(fields)

	want := map[string]int{
		"tick_at": 0, "open": 1, "close": 2, "high": 3, "low": 4, "change": 5, "change_rate": 6,
	}
	for name, pos := range want {
		if got, ok := idx[name]; !ok || got != pos {
			t.Errorf("idx[%q] = %d (ok=%v), want %d", name, got, ok, pos)
		}
	}
}
