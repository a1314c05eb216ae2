package tdrs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/tdrs-protocol/tdrs-go/pkg/codec"
	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/delivery"
	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/pool"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

// Transport is one reliable messaging session over a set of candidate relays.
type Transport struct {
	cfg     Config
	codec   *codec.Pipeline
	logger  Logger
	plog    log.Logger
	metrics *metrics.Transport

	handlers map[eventKey]socketHandler

	// mu serializes every mutation of links, pool and cache.
	mu     sync.Mutex
	links  link.Set
	pool   *pool.Pool
	cache  *delivery.Cache
	closed bool
	done   chan struct{}

	hmu           sync.RWMutex
	eventHandlers []EventHandler

	daemon       *discovery.Daemon
	daemonCancel context.CancelFunc
	wg           sync.WaitGroup
}

// New creates a transport. It does not connect; call Connect.
func New(cfg Config) (*Transport, error) {
	cfg.applyDefaults()

	pipeline, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", ErrConfiguration, ErrCodec, err)
	}

	links := link.NewSet()
	for _, l := range cfg.Links {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		links.Add(l)
	}

	slogger, _ := cfg.Logger.(*slog.Logger)
	if nd, ok := cfg.Dialer.(*socket.NetDialer); ok {
		// The caller's dialer may be shared with other transports.
		d := *nd
		if d.ProtocolLogger == nil {
			d.ProtocolLogger = cfg.ProtocolLogger
		}
		if d.Logger == nil {
			d.Logger = slogger
		}
		cfg.Dialer = &d
	}

	t := &Transport{
		cfg:     cfg,
		codec:   pipeline,
		logger:  cfg.Logger,
		plog:    cfg.ProtocolLogger,
		metrics: cfg.Metrics,
		links:   links,
		pool:    pool.New(cfg.Rand),
		cache:   delivery.NewCache(),
		done:    make(chan struct{}),
	}
	t.handlers = t.socketHandlers()
	t.pool.Reconcile(t.links)

	if cfg.Discovery {
		t.daemon = discovery.NewDaemon(discovery.DaemonConfig{
			Browser: cfg.Browser,
			Logger:  slogger,
		})
		ctx, cancel := context.WithCancel(context.Background())
		t.daemonCancel = cancel
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			err := t.daemon.Run(ctx, t.handleDiscoveryLine)
			if err != nil && !errors.Is(err, context.Canceled) {
				t.logger.Warn("discovery stopped", "error", err)
			}
		}()
	}

	t.logger.Debug("transport created",
		"identity", cfg.Identity.String(),
		"links", len(t.links),
		"discovery", cfg.Discovery,
		"codec", pipeline.Stages())
	return t, nil
}

// Identity returns the transport identity.
func (t *Transport) Identity() uuid.UUID {
	return t.cfg.Identity
}

// Connect picks a random link and opens its two channels. It fails with
// ErrAlreadyConnected while a connection is active and with ErrNoLinks
// when no link is known.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectLocked()
}

// Disconnect releases the active connection, if any.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnectLocked()
}

// Reconnect disconnects and connects again, possibly to another link. The
// two steps are not atomic: when Connect fails the session stays without
// an active connection.
func (t *Transport) Reconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reconnectLocked()
}

// Links returns the current link configuration.
func (t *Transport) Links() []link.Link {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.links.Clone()
}

// Undelivered returns the hashes of packets the relay rejected.
func (t *Transport) Undelivered() []string {
	return t.cache.WithStatus(delivery.StatusUndelivered)
}

// Cached reports whether the packet with hash is still in the delivery
// cache, i.e. neither confirmed by its echo nor failed to send.
func (t *Transport) Cached(hash string) bool {
	_, ok := t.cache.Get(hash)
	return ok
}

// Close releases all connections and stops discovery. Pending Send calls
// fail with ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)

	var err error
	if _, rerr := t.pool.Evict(nil, true); rerr != nil {
		err = rerr
	}
	t.mu.Unlock()

	if t.daemonCancel != nil {
		t.daemonCancel()
		t.daemon.Stop()
	}
	t.wg.Wait()

	t.logger.Debug("transport closed", "identity", t.cfg.Identity.String())
	return err
}

func (t *Transport) connectLocked() error {
	if t.closed {
		return ErrClosed
	}
	if t.pool.Active() != nil {
		return ErrAlreadyConnected
	}
	if len(t.links) == 0 {
		return ErrNoLinks
	}

	t.pool.Reconcile(t.links)
	if _, err := t.pool.Evict(t.links, true); err != nil {
		t.logger.Warn("releasing stale connections", "error", err)
	}

	c := t.pool.Pick()
	t.pool.Activate(c)

	for _, role := range []connection.Role{connection.RolePublisher, connection.RoleReceiver} {
		if err := t.openLocked(c, role); err != nil {
			if rerr := c.Release(); rerr != nil {
				t.logger.Debug("release after failed open", "error", rerr)
			}
			t.logState(log.StateEntityLink, log.ChannelNone, c.Link.ID, "ACTIVE", "INACTIVE", err.Error())
			return fmt.Errorf("%w: %s channel of %s: %w", ErrTransport, role, c.Link, err)
		}
	}

	t.logState(log.StateEntityLink, log.ChannelNone, c.Link.ID, "INACTIVE", "ACTIVE", "")
	t.logger.Info("connecting", "link", c.Link.String())
	return nil
}

// openLocked creates the socket of one channel of c.
func (t *Transport) openLocked(c *pool.Connection, role connection.Role) error {
	ch := c.Channel(role)
	if ch.Socket != nil {
		_ = ch.Socket.Close()
		ch.Socket = nil
	}

	kind, address := socket.Subscriber, c.Link.PublisherAddress
	if role == connection.RoleReceiver {
		kind, address = socket.Requester, c.Link.ReceiverAddress
	}

	ref := &socketRef{}
	s, err := t.cfg.Dialer.Dial(kind, address, func(ev socket.Event) {
		t.onSocketEvent(ref, ev)
	})
	if err != nil {
		return err
	}
	ref.socket = s
	ch.Socket = s

	old := ch.State()
	ch.MarkConnecting()
	t.logChannelState(c, role, old, ch.State(), "")
	return nil
}

func (t *Transport) disconnectLocked() error {
	c := t.pool.Active()
	if c == nil {
		return nil
	}
	err := c.Release()
	t.logState(log.StateEntityLink, log.ChannelNone, c.Link.ID, "ACTIVE", "INACTIVE", "disconnect")
	t.logger.Info("disconnected", "link", c.Link.String())
	return err
}

func (t *Transport) reconnectLocked() error {
	if err := t.disconnectLocked(); err != nil {
		t.logger.Debug("disconnect before reconnect", "error", err)
	}
	return t.connectLocked()
}
