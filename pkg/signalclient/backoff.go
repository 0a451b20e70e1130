package signalclient

import (
	"math"
	"math/rand"
	"time"
)

// Backoff bounds how a viewer retries a session that has no publisher yet.
type Backoff struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// MaxAttempts is the number of viewer_join requests sent before giving up.
	MaxAttempts int
	Jitter      bool
}

// DefaultBackoff waits roughly 0.5s, 1s, 2s, 4s, 8s, 10s, 10s between joins.
func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2,
		MaxAttempts:  8,
		Jitter:       true,
	}
}

// NextDelay returns the wait after attempt N (1-based). With jitter the delay
// is scaled by a factor in [0.5, 1.5).
func NextDelay(cfg Backoff, attempt int, rng *rand.Rand) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}
