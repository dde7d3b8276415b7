package yieldapi

import (
	"time"

	"github.com/rs/zerolog/log"
	"resty.dev/v3"

	"github.com/Junxiao-Zhao/US10YR-Crawler/internal/ratelimit"
)

const (
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second

	userAgent = "us10yr-crawler/1.0"
)

// newHTTPClient creates the resty client used for all candle requests, with
// retry logic and exponential backoff bounded by retryCount.
func newHTTPClient(baseURL string, timeout time.Duration, retryCount int, limiter *ratelimit.Limiter) *resty.Client {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout).
		SetRetryCount(retryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook, limiterRetryHook(limiter))

	return client
}

// retryCondition determines whether a request should be retried based on the
// response and error. Client errors other than 429 are never retried.
func retryCondition(r *resty.Response, err error) bool {
	// Retry on network errors
	if err != nil {
		return true
	}

	// Retry on server errors (5xx)
	if r.StatusCode() >= 500 {
		return true
	}

	// Retry on rate limit (429)
	if r.StatusCode() == 429 {
		return true
	}

	// Retry on request timeout (408)
	if r.StatusCode() == 408 {
		return true
	}

	return false
}

// retryHook logs retry attempts for observability.
func retryHook(r *resty.Response, err error) {
	if err != nil {
		log.Debug().
			Str("url", r.Request.URL).
			Int("attempt", r.Request.Attempt).
			Err(err).
			Msg("retrying request after error")
		return
	}

	log.Debug().
		Str("url", r.Request.URL).
		Int("attempt", r.Request.Attempt).
		Int("status_code", r.StatusCode()).
		Msg("retrying request after status code")
}

// limiterRetryHook sends each retry back through the shared limiter, so a
// retry burst stays inside the configured request rate. The first attempt
// waits in FetchDay.
func limiterRetryHook(l *ratelimit.Limiter) func(*resty.Response, error) {
	return func(r *resty.Response, _ error) {
		// A canceled context surfaces as the retry attempt's own error.
		_ = l.Wait(r.Request.Context())
	}
}
