package retry

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Config defines retry behavior configuration.
type Config struct {
	// MaxAttempts is the maximum number of attempts (0 = infinite).
	MaxAttempts int
	// InitialDelay is the delay before the second attempt; it doubles after
	// every failure.
	InitialDelay time.Duration
	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration
	// Jitter adds up to Jitter*InitialDelay of random delay (0-1).
	Jitter float64
	// OnRetry, when set, is called after failed attempts. attempt counts
	// from 1.
	OnRetry func(attempt int, err error)
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Jitter:       0.1,
	}
}

// Manager handles retry logic with exponential backoff.
type Manager struct {
	config Config
}

// NewManager creates a new retry manager.
func NewManager(config Config) *Manager {
	return &Manager{config: config}
}

// Permanent marks err as not worth retrying; Run returns it immediately.
func Permanent(err error) error {
	return retrygo.Unrecoverable(err)
}

// Run executes fn until it succeeds, returns a Permanent error, the attempt
// budget is spent or ctx is done. It returns nil on success and otherwise
// the last error (or the context error).
func (m *Manager) Run(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(uint(max(m.config.MaxAttempts, 0))),
		retrygo.Delay(m.config.InitialDelay),
		retrygo.LastErrorOnly(true),
	}
	if m.config.MaxDelay > 0 {
		opts = append(opts, retrygo.MaxDelay(m.config.MaxDelay))
	}
	if m.config.Jitter > 0 {
		opts = append(opts,
			retrygo.DelayType(retrygo.CombineDelay(retrygo.BackOffDelay, retrygo.RandomDelay)),
			retrygo.MaxJitter(time.Duration(float64(m.config.InitialDelay)*m.config.Jitter)),
		)
	} else {
		opts = append(opts, retrygo.DelayType(retrygo.BackOffDelay))
	}
	if m.config.OnRetry != nil {
		onRetry := m.config.OnRetry
		opts = append(opts, retrygo.OnRetry(func(n uint, err error) {
			onRetry(int(n)+1, err)
		}))
	}

	return retrygo.Do(func() error { return fn(ctx) }, opts...)
}
