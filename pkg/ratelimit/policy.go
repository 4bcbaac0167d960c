// Package ratelimit defines how the OSF client reacts to throttling.
// A Policy decides which response statuses are transient and how long to
// cool down before resubmitting; a Pacer optionally spaces out requests
// before they are sent.
package ratelimit

import (
	"fmt"
	"net/http"
	"time"
)

// DefaultCooldown is the fixed wait before a throttled request is resubmitted.
const DefaultCooldown = 60 * time.Second

// DefaultRetryableStatuses are the statuses treated as transient.
// 429 is the API's throttle signal; 500 and 503 are retried the same way.
var DefaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusInternalServerError,
	http.StatusServiceUnavailable,
}

// Policy is the retry policy applied to every outbound request.
//
// A Policy carries no per-request state: whether a response is retried
// depends only on that response's status code.
type Policy struct {
	// Cooldown is the fixed wait between attempts. It is never derived
	// from the server's Retry-After header.
	Cooldown time.Duration

	// MaxAttempts bounds the number of attempts including the first one.
	// Zero means retry until a non-retryable status is seen.
	MaxAttempts int

	// RetryableStatuses lists the statuses that trigger a cooldown.
	RetryableStatuses []int
}

// DefaultPolicy returns the unbounded policy: 429/500/503 are retried
// forever after DefaultCooldown.
func DefaultPolicy() Policy {
	statuses := make([]int, len(DefaultRetryableStatuses))
	copy(statuses, DefaultRetryableStatuses)

	return Policy{
		Cooldown:          DefaultCooldown,
		MaxAttempts:       0,
		RetryableStatuses: statuses,
	}
}

// Validate reports configuration errors.
func (p Policy) Validate() error {
	if p.Cooldown < 0 {
		return fmt.Errorf("cooldown must be >= 0 (got %s)", p.Cooldown)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must be >= 0 (got %d)", p.MaxAttempts)
	}
	return nil
}

// Retryable reports whether a response with the given status should be
// resubmitted after the cooldown.
func (p Policy) Retryable(status int) bool {
	for _, s := range p.RetryableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Unbounded reports whether the policy retries without an attempt limit.
func (p Policy) Unbounded() bool {
	return p.MaxAttempts == 0
}

// Exhausted reports whether no attempt remains after the given attempt
// number (1-based) has failed with a retryable status.
func (p Policy) Exhausted(attempt int) bool {
	return !p.Unbounded() && attempt >= p.MaxAttempts
}
