package ratelimit

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var pacerWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "osf_pacer_waits_total",
	Help: "Total number of requests that passed through the client-side pacer",
})

// Pacer spaces outgoing requests with a token bucket. A nil Pacer, or one
// built with a non-positive rate, never waits.
type Pacer struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewPacer creates a pacer allowing requestsPerSecond requests with the
// given burst. It returns nil when requestsPerSecond <= 0.
func NewPacer(requestsPerSecond float64, burst int, logger zerolog.Logger) *Pacer {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}

	logger.Debug().
		Float64("requests_per_second", requestsPerSecond).
		Int("burst", burst).
		Msg("Request pacing enabled")

	return &Pacer{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:  logger,
	}
}

// Wait blocks until the next request may be sent or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil || p.limiter == nil {
		return nil
	}

	pacerWaitsTotal.Inc()
	return p.limiter.Wait(ctx)
}
