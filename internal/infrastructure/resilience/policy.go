package resilience

import "time"

// Config tunes retries and the circuit breaker for one executor.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

// DefaultConfig suits calls made from a background phase chain, where a few
// seconds of retrying only delays indexing.
func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// PublishConfig is for the scheduling hand-off that an upload request waits on:
// fewer attempts, tighter backoff, and a breaker that reopens sooner.
func PublishConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 2
	cfg.RetryInitialBackoff = 50 * time.Millisecond
	cfg.RetryMaxBackoff = 200 * time.Millisecond
	cfg.BreakerMinRequests = 5
	cfg.BreakerOpenTimeout = 10 * time.Second
	return cfg
}

// Override applies operator settings; zero values keep the receiver's value.
func (c Config) Override(maxAttempts int, openTimeout time.Duration) Config {
	if maxAttempts > 0 {
		c.RetryMaxAttempts = maxAttempts
	}
	if openTimeout > 0 {
		c.BreakerOpenTimeout = openTimeout
	}
	return c
}

func (c Config) normalize() Config {
	out := c
	def := DefaultConfig()

	if out.RetryMaxAttempts <= 0 {
		out.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if out.RetryInitialBackoff <= 0 {
		out.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if out.RetryMaxBackoff < out.RetryInitialBackoff {
		out.RetryMaxBackoff = out.RetryInitialBackoff
	}
	if out.RetryMultiplier < 1.0 {
		out.RetryMultiplier = def.RetryMultiplier
	}

	if out.BreakerMinRequests == 0 {
		out.BreakerMinRequests = def.BreakerMinRequests
	}
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if out.BreakerOpenTimeout <= 0 {
		out.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if out.BreakerHalfOpenMaxCalls == 0 {
		out.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}

	return out
}
