package connection

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Default redial spacing.
const (
	InitialBackoff    = 100 * time.Millisecond
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 2.0

	// JitterFactor is the largest jitter as a fraction of the base delay.
	JitterFactor = 0.25
)

// BackoffConfig configures redial spacing. Zero fields take the defaults,
// except Jitter, where zero disables jitter.
type BackoffConfig struct {
	Initial    time.Duration `yaml:"initial"`
	Max        time.Duration `yaml:"max"`
	Multiplier float64       `yaml:"multiplier"`
	Jitter     float64       `yaml:"jitter"`

	// Rand is the jitter source. Nil seeds one from the current time.
	Rand *rand.Rand `yaml:"-"`

	// Clock drives Wait. Nil means the wall clock.
	Clock clock.Clock `yaml:"-"`
}

// DefaultBackoffConfig returns the default redial spacing.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

func (c BackoffConfig) withDefaults() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	c.Max = max(c.Max, c.Initial)
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	c.Jitter = max(c.Jitter, 0)
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	return c
}

// Backoff spaces consecutive dial attempts of one socket exponentially.
type Backoff struct {
	cfg BackoffConfig

	mu       sync.Mutex
	base     time.Duration
	attempts int
}

// NewBackoff creates a Backoff with the default spacing.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(DefaultBackoffConfig())
}

// NewBackoffWithConfig creates a Backoff from cfg.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	cfg = cfg.withDefaults()
	return &Backoff{cfg: cfg, base: cfg.Initial}
}

// Next returns the jittered delay for the coming attempt and grows the base
// delay up to the maximum.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	delay := b.jittered(b.base)
	b.attempts++
	b.base = min(time.Duration(float64(b.base)*b.cfg.Multiplier), b.cfg.Max)
	return delay
}

// Peek returns a jittered delay for the current base without advancing.
func (b *Backoff) Peek() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jittered(b.base)
}

// Wait sleeps for d on the configured clock. It returns ctx.Err() if ctx
// ends first.
func (b *Backoff) Wait(ctx context.Context, d time.Duration) error {
	timer := b.cfg.Clock.Timer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset returns to the initial delay after a successful connect.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.base = b.cfg.Initial
	b.attempts = 0
}

// Attempts returns the number of delays handed out since the last Reset.
func (b *Backoff) Attempts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempts
}

// Current returns the base delay without jitter.
func (b *Backoff) Current() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base
}

// jittered is called with b.mu held; rand.Rand is not safe for concurrent use.
func (b *Backoff) jittered(d time.Duration) time.Duration {
	if b.cfg.Jitter == 0 {
		return d
	}
	return d + time.Duration(float64(d)*b.cfg.Jitter*b.cfg.Rand.Float64())
}
