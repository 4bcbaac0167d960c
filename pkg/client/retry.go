package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/osf-archiver/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	osfRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "osf_retries_total",
		Help: "Total number of resubmitted requests by triggering status",
	}, []string{"status"})

	osfRetryCooldownSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "osf_retry_cooldown_seconds",
		Help:    "Cooldown waited before resubmitting a throttled request",
		Buckets: []float64{0.1, 1, 5, 10, 30, 60, 120},
	})

	osfRetryExhaustedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "osf_retry_exhausted_total",
		Help: "Total number of requests abandoned after a bounded retry budget",
	})
)

// sendFunc issues one attempt of a request.
type sendFunc func(ctx context.Context) (*http.Response, error)

// sleepFunc waits for d or until ctx is done.
type sleepFunc func(ctx context.Context, d time.Duration) error

// sleepContext is the default sleepFunc.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryOnStatus issues send until it yields a response whose status the
// policy does not retry, and returns that response untouched.
//
// Every retryable response is discarded and followed by a fixed cooldown.
// Transport errors are returned immediately. With an unbounded policy the
// loop only ends on a non-retryable status or context cancellation.
func retryOnStatus(ctx context.Context, policy ratelimit.Policy, logger zerolog.Logger, sleep sleepFunc, target string, send sendFunc) (*http.Response, error) {
	for attempt := 1; ; attempt++ {
		resp, err := send(ctx)
		if err != nil {
			return nil, err
		}

		if !policy.Retryable(resp.StatusCode) {
			if attempt > 1 {
				logger.Info().
					Str("url", target).
					Int("attempt", attempt).
					Int("status", resp.StatusCode).
					Msg("Request succeeded after cooldown")
			}
			return resp, nil
		}

		status := resp.StatusCode
		retryAfter := resp.Header.Get("Retry-After")
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if policy.Exhausted(attempt) {
			osfRetryExhaustedTotal.Inc()
			logger.Warn().
				Str("url", target).
				Int("status", status).
				Int("max_attempts", policy.MaxAttempts).
				Msg("Retry attempts exhausted")
			return nil, &APIError{
				StatusCode: status,
				ErrorClass: ClassifyStatus(status),
				Message:    fmt.Sprintf("gave up after %d attempts", attempt),
				URL:        target,
				Err:        ErrRetryExhausted,
			}
		}

		osfRetriesTotal.WithLabelValues(strconv.Itoa(status)).Inc()
		osfRetryCooldownSeconds.Observe(policy.Cooldown.Seconds())

		logger.Warn().
			Str("url", target).
			Int("status", status).
			Int("attempt", attempt).
			Str("retry_after", retryAfter).
			Dur("cooldown", policy.Cooldown).
			Msg("Throttled, cooling down before resubmitting")

		if err := sleep(ctx, policy.Cooldown); err != nil {
			logger.Warn().
				Str("url", target).
				Int("attempt", attempt).
				Msg("Context cancelled during cooldown")
			return nil, fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
	}
}
