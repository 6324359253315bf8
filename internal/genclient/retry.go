package genclient

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// StatusError is a non-2xx provider response. 429 and 503 are retryable;
// everything else propagates to the caller immediately.
type StatusError struct {
	StatusCode int
	Header     http.Header
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.StatusCode, e.Body)
}

// Throttled reports whether e is a retryable throttle response.
func (e *StatusError) Throttled() bool {
	return e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode == http.StatusServiceUnavailable
}

// RetryPolicy controls throttle retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration

	// rng lets tests pin the jitter.
	rng *rand.Rand
}

// DefaultRetryPolicy matches the provider defaults: five attempts, backoff
// from two seconds capped at a minute.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, BaseDelay: 2 * time.Second, MaxDelay: time.Minute}
}

// Delay computes the wait before retry number attempt (0-based). Provider
// hints win; otherwise capped exponential backoff with 15-30% jitter so
// throttled callers do not resynchronize.
func (p RetryPolicy) Delay(attempt int, hdr http.Header) time.Duration {
	if d, ok := hintDelay(hdr); ok {
		return d
	}

	d := p.BaseDelay << attempt
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return p.jitter(d)
}

func (p RetryPolicy) jitter(d time.Duration) time.Duration {
	f := rand.Float64
	if p.rng != nil {
		f = p.rng.Float64
	}
	frac := 0.15 + f()*0.15
	if f() < 0.5 {
		frac = -frac
	}
	return d + time.Duration(float64(d)*frac)
}

// hintDelay extracts a provider retry hint: milliseconds, whole seconds, or
// a compound duration string like "1m30s".
func hintDelay(hdr http.Header) (time.Duration, bool) {
	if v := hdr.Get("retry-after-ms"); v != "" {
		if ms, err := strconv.ParseFloat(v, 64); err == nil && ms > 0 {
			return time.Duration(ms * float64(time.Millisecond)), true
		}
	}
	if v := hdr.Get("retry-after"); v != "" {
		if sec, err := strconv.ParseFloat(v, 64); err == nil && sec > 0 {
			return time.Duration(sec * float64(time.Second)), true
		}
	}
	if v := hdr.Get("x-ratelimit-reset-tokens"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d, true
		}
		if sec, err := strconv.ParseFloat(v, 64); err == nil && sec > 0 {
			return time.Duration(sec * float64(time.Second)), true
		}
	}
	return 0, false
}
