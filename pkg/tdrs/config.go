package tdrs

import (
	"math/rand"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/tdrs-protocol/tdrs-go/pkg/codec"
	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

// Default timings.
const (
	// DefaultSendTimeout bounds how long Send waits for a ready connection.
	DefaultSendTimeout = 5 * time.Second

	// DefaultSendPollInterval is how often Send checks for a ready connection.
	DefaultSendPollInterval = time.Second
)

// Config configures a Transport.
type Config struct {
	// Links are the candidate relays.
	Links []link.Link

	// Discovery adds and removes links from PEER notifications produced by
	// a discovery daemon. With discovery, a transport without links may be
	// created; it connects once the first relay enters.
	Discovery bool

	// Browser feeds the discovery daemon (default: mDNS browser).
	Browser discovery.Browser

	// ConnectRetryBeforeFailover is the number of connect retries of one
	// channel before the transport fails over to another link.
	// Default: connection.MaxConnectionRetries.
	ConnectRetryBeforeFailover int

	// SendTimeout bounds the wait for a ready connection in Send.
	SendTimeout time.Duration

	// SendPollInterval is the readiness polling interval of Send.
	SendPollInterval time.Duration

	// Codec selects compression and encryption.
	Codec codec.Config

	// Logger receives operational messages (default: discard).
	Logger Logger

	// ProtocolLogger captures frames, control messages and state changes
	// (default: none).
	ProtocolLogger log.Logger

	// Metrics receives transport counters (default: unregistered collectors).
	Metrics *metrics.Transport

	// Dialer creates sockets (default: socket.NetDialer).
	Dialer socket.Dialer

	// Rand selects links (default: time-seeded).
	Rand *rand.Rand

	// Clock drives the send gate (default: wall clock).
	Clock clock.Clock

	// Identity names the transport in capture logs (default: random).
	Identity uuid.UUID
}

func (c *Config) applyDefaults() {
	if c.ConnectRetryBeforeFailover <= 0 {
		c.ConnectRetryBeforeFailover = connection.MaxConnectionRetries
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	if c.SendPollInterval <= 0 {
		c.SendPollInterval = DefaultSendPollInterval
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = metrics.NewTransport(nil)
	}
	if c.Dialer == nil {
		c.Dialer = &socket.NetDialer{}
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.Identity == uuid.Nil {
		c.Identity = uuid.New()
	}
}
