package socket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
)

// DefaultDialTimeout bounds a single dial attempt.
const DefaultDialTimeout = 5 * time.Second

// NetDialer dials tcp and ws addresses.
type NetDialer struct {
	// Backoff spaces redial attempts. Its Rand field is ignored.
	Backoff connection.BackoffConfig

	// DialTimeout bounds a single dial attempt (default: 5s).
	DialTimeout time.Duration

	// MaxFrameSize is the maximum frame size (default: 1 MiB).
	MaxFrameSize uint32

	// WriteTimeout bounds a single frame write (default: 5s, negative
	// disables). A write that times out drops the connection.
	WriteTimeout time.Duration

	// KeepAlive configures pings and the read idle bound. The zero value
	// selects the defaults.
	KeepAlive KeepAliveConfig

	// ProtocolLogger captures frames and state changes (optional).
	ProtocolLogger log.Logger

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// Dial implements Dialer.
func (d *NetDialer) Dial(kind Kind, address string, handler Handler) (Socket, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		handler = func(Event) {}
	}

	timeout := d.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// rand.Rand is not safe for concurrent use; every socket seeds its own.
	bcfg := d.Backoff
	bcfg.Rand = nil

	ctx, cancel := context.WithCancel(context.Background())
	s := &netSocket{
		kind:    kind,
		address: address,
		addr:    addr,
		connID:  uuid.New().String(),
		handler: handler,
		backoff: connection.NewBackoffWithConfig(bcfg),
		timeout: timeout,
		opts:    newConnOptions(d.MaxFrameSize, d.WriteTimeout, d.KeepAlive),
		ka:      d.KeepAlive,
		plog:    d.ProtocolLogger,
		logger:  logger.With("socket", kind.String(), "address", address),
		ctx:     ctx,
		cancel:  cancel,
	}

	go s.run()
	return s, nil
}

// netSocket is a client socket over tcp or ws.
type netSocket struct {
	kind    Kind
	address string
	addr    Address
	connID  string
	handler Handler
	backoff *connection.Backoff
	timeout time.Duration
	opts    connOptions
	ka      KeepAliveConfig
	plog    log.Logger
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	conn     frameConn
	closed   bool
	closeErr error
}

// Address implements Socket.
func (s *netSocket) Address() string {
	return s.address
}

// Send implements Socket. A write that fails on the wire drops the
// connection; the socket then reports disconnect and redials.
func (s *netSocket) Send(data []byte) error {
	if s.kind == Subscriber {
		return ErrNotSupported
	}

	s.mu.Lock()
	conn, closed := s.conn, s.closed
	s.mu.Unlock()

	if closed {
		return ErrClosed
	}
	if conn == nil {
		return ErrNotConnected
	}
	return conn.WriteFrame(data)
}

// Close implements Socket.
func (s *netSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	s.cancel()

	var err error
	if conn != nil {
		err = conn.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}

	s.mu.Lock()
	s.closeErr = err
	s.mu.Unlock()
	return err
}

// run owns the connection lifecycle and delivers all events.
func (s *netSocket) run() {
	for s.ctx.Err() == nil {
		conn, err := dialConn(s.ctx, s.addr, s.timeout, s.opts, s.plog, s.connID)
		if err != nil {
			if s.ctx.Err() != nil {
				break
			}
			if !s.waitRetry(err) {
				break
			}
			continue
		}

		if !s.attach(conn) {
			conn.Close()
			break
		}
		s.backoff.Reset()
		s.logState("CONNECTING", "CONNECTED", "")
		s.emit(Event{Kind: EventConnect})

		done := make(chan struct{})
		go keepAlive(done, conn, s.ka)
		err = s.readLoop(conn)
		close(done)

		s.detach(conn)
		if s.ctx.Err() != nil {
			break
		}
		conn.Close()

		s.logState("CONNECTED", "DISCONNECTED", errString(err))
		s.emit(Event{Kind: EventDisconnect, Err: err})

		if !s.waitRetry(err) {
			break
		}
	}

	s.mu.Lock()
	closeErr := s.closeErr
	s.mu.Unlock()

	if closeErr != nil {
		s.emit(Event{Kind: EventCloseError, Err: closeErr})
		return
	}
	s.logState("", "CLOSED", "")
	s.emit(Event{Kind: EventClose})
}

// waitRetry reports the failed attempt, sleeps the backoff and announces the
// retry. It returns false when the socket was closed meanwhile.
func (s *netSocket) waitRetry(cause error) bool {
	delay := s.backoff.Next()
	s.logger.Debug("dial pending", "delay", delay, "error", cause)
	s.emit(Event{Kind: EventConnectDelay, Err: cause, Delay: delay})

	if s.backoff.Wait(s.ctx, delay) != nil {
		return false
	}

	s.emit(Event{Kind: EventConnectRetry})
	return true
}

// readLoop delivers frames until the connection fails.
func (s *netSocket) readLoop(conn frameConn) error {
	for {
		data, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrFrameEmpty) {
				// The stream cannot be resynchronized after a bad header.
				s.emit(Event{Kind: EventMonitorError, Err: err})
			}
			if err == io.EOF {
				return io.EOF
			}
			return err
		}
		s.emit(Event{Kind: EventMessage, Data: data})
	}
}

func (s *netSocket) attach(conn frameConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *netSocket) detach(conn frameConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

func (s *netSocket) emit(ev Event) {
	ev.Address = s.address
	s.handler(ev)
}

func (s *netSocket) logState(oldState, newState, reason string) {
	if s.plog == nil {
		return
	}
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.connID,
		Layer:        log.LayerSocket,
		Category:     log.CategoryState,
		RemoteAddr:   s.address,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer = (*NetDialer)(nil)
	_ Socket = (*netSocket)(nil)
)
