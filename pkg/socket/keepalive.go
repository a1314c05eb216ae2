package socket

import (
	"errors"
	"time"
)

// Liveness constants.
const (
	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultKeepAliveInterval is the default interval between pings.
	DefaultKeepAliveInterval = 10 * time.Second

	// DefaultMaxMissed is the default number of silent intervals tolerated
	// before a connection is dropped.
	DefaultMaxMissed = 3
)

// ErrPeerUnresponsive is returned by a read that saw no traffic, not even a
// heartbeat, for the keepalive detection delay.
var ErrPeerUnresponsive = errors.New("peer unresponsive")

// KeepAliveConfig configures connection liveness monitoring.
//
// Each side pings at Interval and the remote answers with a pong. Any inbound
// traffic counts as a sign of life; a connection silent for DetectionDelay is
// dropped.
type KeepAliveConfig struct {
	// Interval is the interval between pings. Zero selects
	// DefaultKeepAliveInterval; a negative value disables keepalive.
	Interval time.Duration `yaml:"interval"`

	// MaxMissed is the number of silent intervals before the connection is
	// considered dead (default: 3).
	MaxMissed int `yaml:"maxMissed"`
}

// DefaultKeepAliveConfig returns the default keepalive configuration.
func DefaultKeepAliveConfig() KeepAliveConfig {
	return KeepAliveConfig{
		Interval:  DefaultKeepAliveInterval,
		MaxMissed: DefaultMaxMissed,
	}
}

// Enabled reports whether pings are sent at all.
func (c KeepAliveConfig) Enabled() bool {
	return c.Interval >= 0
}

// DetectionDelay is the longest a dead connection goes unnoticed. It is zero
// when keepalive is disabled.
func (c KeepAliveConfig) DetectionDelay() time.Duration {
	if !c.Enabled() {
		return 0
	}
	c = c.withDefaults()
	return c.Interval * time.Duration(c.MaxMissed)
}

func (c KeepAliveConfig) withDefaults() KeepAliveConfig {
	if c.Interval == 0 {
		c.Interval = DefaultKeepAliveInterval
	}
	if c.MaxMissed <= 0 {
		c.MaxMissed = DefaultMaxMissed
	}
	return c
}

// connOptions carries the per-connection settings shared by dialed and
// accepted connections.
type connOptions struct {
	maxSize      uint32
	writeTimeout time.Duration
	idleTimeout  time.Duration
}

func newConnOptions(maxSize uint32, writeTimeout time.Duration, ka KeepAliveConfig) connOptions {
	if writeTimeout == 0 {
		writeTimeout = DefaultWriteTimeout
	}
	if writeTimeout < 0 {
		writeTimeout = 0
	}
	return connOptions{
		maxSize:      maxSize,
		writeTimeout: writeTimeout,
		idleTimeout:  ka.DetectionDelay(),
	}
}

// keepAlive pings conn every interval until done is closed. A failed ping
// drops the connection so its reader returns.
func keepAlive(done <-chan struct{}, conn frameConn, ka KeepAliveConfig) {
	if !ka.Enabled() {
		return
	}
	ka = ka.withDefaults()

	ticker := time.NewTicker(ka.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.Ping(); err != nil {
				conn.Close()
				return
			}
		}
	}
}
