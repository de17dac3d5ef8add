package graph

import (
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
)

const (
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
	RetryNone        = "none"

	defaultRetryDelay = 100 * time.Millisecond
)

// Retry strategy for task
type Retry struct {
	Type       string  `json:"type,omitempty" yaml:"type,omitempty"` // fixed, exponential, none
	MaxRetries int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	Delay      string  `json:"delay,omitempty" yaml:"delay,omitempty"`           // base delay (duration string)
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"` // exponential multiplier (>1)
	MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
}

// Backoff returns a fresh backoff, nil when retry is disabled
func (r *Retry) Backoff() retry.Backoff {
	if r == nil || r.MaxRetries <= 0 || strings.ToLower(r.Type) == RetryNone {
		return nil
	}
	delay := parseDuration(r.Delay, defaultRetryDelay)
	var backoff retry.Backoff
	switch strings.ToLower(r.Type) {
	case RetryExponential:
		backoff = retry.NewExponential(delay)
		if r.Multiplier > 1 {
			backoff = multiplied(delay, r.Multiplier)
		}
	default:
		backoff = retry.NewConstant(delay)
	}
	if r.MaxDelay != "" {
		backoff = retry.WithCappedDuration(parseDuration(r.MaxDelay, delay), backoff)
	}
	return retry.WithMaxRetries(uint64(r.MaxRetries), backoff)
}

// multiplied grows delay by multiplier on every attempt
func multiplied(base time.Duration, multiplier float64) retry.Backoff {
	next := float64(base)
	return retry.BackoffFunc(func() (time.Duration, bool) {
		current := time.Duration(next)
		next *= multiplier
		return current, false
	})
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return fallback
}
