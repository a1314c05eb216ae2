package connection

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	t.Run("DefaultSequence", func(t *testing.T) {
		b := NewBackoff()

		expected := []time.Duration{
			100 * time.Millisecond,
			200 * time.Millisecond,
			400 * time.Millisecond,
			800 * time.Millisecond,
			1600 * time.Millisecond,
		}

		for i, exp := range expected {
			base := b.Current()
			_ = b.Next()

			if base != exp {
				t.Errorf("Attempt %d: base = %v, want %v", i, base, exp)
			}
		}
	})

	t.Run("CapsAtMax", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 20; i++ {
			b.Next()
		}
		if b.Current() != MaxBackoff {
			t.Errorf("Current() = %v, want %v", b.Current(), MaxBackoff)
		}
	})

	t.Run("Jitter", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Jitter: JitterFactor,
			Rand:   rand.New(rand.NewSource(7)),
		})

		samples := make([]time.Duration, 10)
		for i := range samples {
			samples[i] = b.Peek()
		}

		upper := time.Duration(float64(InitialBackoff) * (1 + JitterFactor))
		for i, s := range samples {
			if s < InitialBackoff || s > upper {
				t.Errorf("Sample %d: %v out of expected range [%v, %v]", i, s, InitialBackoff, upper)
			}
		}

		allSame := true
		for i := 1; i < len(samples); i++ {
			if samples[i] != samples[0] {
				allSame = false
				break
			}
		}
		if allSame {
			t.Error("All jittered samples are identical - jitter may not be working")
		}
	})

	t.Run("Reset", func(t *testing.T) {
		b := NewBackoff()
		for i := 0; i < 5; i++ {
			b.Next()
		}

		if b.Current() <= InitialBackoff {
			t.Error("Backoff should have increased")
		}

		b.Reset()

		if b.Current() != InitialBackoff {
			t.Errorf("Current() = %v after reset, want %v", b.Current(), InitialBackoff)
		}
		if b.Attempts() != 0 {
			t.Errorf("Attempts() = %d after reset, want 0", b.Attempts())
		}
	})

	t.Run("CustomConfig", func(t *testing.T) {
		b := NewBackoffWithConfig(BackoffConfig{
			Initial:    time.Millisecond,
			Max:        5 * time.Millisecond,
			Multiplier: 2.0,
		})

		expected := []time.Duration{
			1 * time.Millisecond,
			2 * time.Millisecond,
			4 * time.Millisecond,
			5 * time.Millisecond,
			5 * time.Millisecond,
		}

		for i, exp := range expected {
			got := b.Next()
			if got != exp {
				t.Errorf("Attempt %d: got %v, want %v", i, got, exp)
			}
		}
		assert.Equal(t, 5, b.Attempts())
	})
}

func TestBackoffWait(t *testing.T) {
	mock := clock.NewMock()
	b := NewBackoffWithConfig(BackoffConfig{Clock: mock})

	done := make(chan error, 1)
	go func() { done <- b.Wait(context.Background(), time.Second) }()

	// Advance until the timer registered by Wait fires.
	assert.Eventually(t, func() bool {
		mock.Add(100 * time.Millisecond)
		select {
		case err := <-done:
			return err == nil
		default:
			return false
		}
	}, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, b.Wait(ctx, time.Hour), context.Canceled)
}

func TestChannel(t *testing.T) {
	t.Run("Lifecycle", func(t *testing.T) {
		var c Channel
		assert.Equal(t, StateDisconnected, c.State())

		c.MarkConnecting()
		assert.Equal(t, StateConnecting, c.State())
		assert.False(t, c.Connected())

		c.MarkConnected()
		assert.True(t, c.Connected())

		c.MarkDisconnected()
		assert.Equal(t, StateDisconnected, c.State())
	})

	t.Run("DisconnectKeepsRetryCount", func(t *testing.T) {
		var c Channel
		c.Retry(10)
		c.Retry(10)
		c.MarkDisconnected()
		assert.Equal(t, 2, c.RetryCount())
	})

	t.Run("ConnectResetsRetryCount", func(t *testing.T) {
		var c Channel
		c.Retry(10)
		c.Retry(10)
		c.MarkConnected()
		assert.Equal(t, 0, c.RetryCount())
	})

	t.Run("RetryExceedsThreshold", func(t *testing.T) {
		var c Channel
		for i := 1; i <= 3; i++ {
			assert.False(t, c.Retry(3), "retry %d", i)
			assert.Equal(t, i, c.RetryCount())
		}

		assert.True(t, c.Retry(3))
		assert.Equal(t, 0, c.RetryCount())
		assert.False(t, c.Retry(3))
	})

	t.Run("DefaultThreshold", func(t *testing.T) {
		var c Channel
		for i := 0; i < MaxConnectionRetries; i++ {
			if c.Retry(0) {
				t.Fatalf("failover after %d retries", i+1)
			}
		}
		assert.True(t, c.Retry(0))
	})
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "DISCONNECTED"},
		{StateConnecting, "CONNECTING"},
		{StateConnected, "CONNECTED"},
		{State(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}

	assert.Equal(t, "publisher", RolePublisher.String())
	assert.Equal(t, "receiver", RoleReceiver.String())
}
