package gateway

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Redial defaults.
const (
	// DefaultRedialInitial is the delay after the first failed dial.
	DefaultRedialInitial = 1 * time.Second

	// DefaultRedialMax caps the delay between dial attempts.
	DefaultRedialMax = 30 * time.Second

	// DefaultRedialMultiplier is the growth factor between attempts.
	DefaultRedialMultiplier = 2.0

	// DefaultRedialJitter is the maximum jitter as a fraction of the
	// base delay.
	DefaultRedialJitter = 0.25
)

// BackoffConfig customizes a Backoff. Zero fields select the defaults.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// Backoff produces exponentially growing, jittered delays between dial
// attempts. Construct with NewBackoff.
type Backoff struct {
	mu         sync.Mutex
	current    time.Duration
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
	attempts   int
	rng        *rand.Rand
}

// NewBackoff creates a backoff calculator.
func NewBackoff(config BackoffConfig) *Backoff {
	if config.Initial <= 0 {
		config.Initial = DefaultRedialInitial
	}
	if config.Max <= 0 {
		config.Max = DefaultRedialMax
	}
	if config.Multiplier <= 1 {
		config.Multiplier = DefaultRedialMultiplier
	}
	if config.Jitter < 0 {
		config.Jitter = 0
	}

	return &Backoff{
		current:    config.Initial,
		initial:    config.Initial,
		max:        config.Max,
		multiplier: config.Multiplier,
		jitter:     config.Jitter,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns the delay to wait before the next attempt and advances
// the backoff.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.current
	if b.jitter > 0 {
		delay += time.Duration(float64(delay) * b.jitter * b.rng.Float64())
	}

	b.attempts++
	next := time.Duration(float64(b.current) * b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next

	return delay
}

// Reset restores the initial delay. Call after a successful dial.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last
// reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// RedialConfig configures DialRetry.
type RedialConfig struct {
	// Client configures each dial attempt.
	Client ClientConfig

	// Backoff shapes the delays between attempts.
	Backoff BackoffConfig

	// OnRetry, when set, is called after each failed attempt with the
	// attempt number, the delay before the next one, and the error.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// DialRetry dials a gateway until a connection is established or ctx is
// cancelled. A console started before its simulator comes up waits here
// instead of failing.
func DialRetry(ctx context.Context, config RedialConfig) (*Client, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	backoff := NewBackoff(config.Backoff)

	for {
		client, err := Dial(config.Client)
		if err == nil {
			return client, nil
		}

		delay := backoff.Next()
		if config.OnRetry != nil {
			config.OnRetry(backoff.Attempts(), delay, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial %s: %w (last attempt: %v)",
				config.Client.Address, ctx.Err(), err)
		case <-timer.C:
		}
	}
}
