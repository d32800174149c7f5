package sdk

import (
	"math"
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig controls exponential backoff and attempt counts.
type RetryConfig struct {
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// RetryPost also retries non-idempotent requests. Login and the other
	// captcha-guarded posts spend their captcha on the first attempt, so this
	// is off by default.
	RetryPost bool
}

// RetryMetadata describes what happened during retries.
type RetryMetadata struct {
	Attempts    int
	MaxAttempts int
	LastBackoff time.Duration
	LastStatus  int
	LastError   string
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseBackoff: 300 * time.Millisecond,
		MaxBackoff:  5 * time.Second,
	}
}

func (r RetryConfig) normalized() RetryConfig {
	cfg := r
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 300 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Second
	}
	return cfg
}

func (r RetryConfig) backoffDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	base := float64(r.BaseBackoff) * math.Pow(2, float64(attempt-2))
	if ceiling := float64(r.MaxBackoff); base > ceiling {
		base = ceiling
	}
	// jitter 0.5x..1.5x
	d := time.Duration(base * (0.5 + rand.Float64()))
	if d > r.MaxBackoff {
		d = r.MaxBackoff
	}
	return d
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
