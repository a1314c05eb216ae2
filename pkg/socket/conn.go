package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tdrs-protocol/tdrs-go/pkg/log"
)

// frameConn is an established, framed connection.
type frameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	Ping() error
	RemoteAddr() string
	Close() error
}

// fault records the first write failure of a connection. A failed write
// leaves the stream unusable, so the connection is closed and its reader
// reports the write error instead of the close.
type fault struct {
	mu  sync.Mutex
	err error
}

func (f *fault) set(err error, closeConn func() error) {
	f.mu.Lock()
	first := f.err == nil
	if first {
		f.err = err
	}
	f.mu.Unlock()
	if first {
		_ = closeConn()
	}
}

func (f *fault) get() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// readError maps a failed read to the error the reader reports.
func readError(err error, f *fault, idle time.Duration) error {
	if werr := f.get(); werr != nil {
		return werr
	}
	var ne net.Error
	if idle > 0 && errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: silent for %s", ErrPeerUnresponsive, idle)
	}
	return err
}

// isLocalWriteError reports errors raised before anything reached the wire.
func isLocalWriteError(err error) bool {
	return errors.Is(err, ErrFrameTooLarge) || errors.Is(err, ErrFrameEmpty)
}

// tcpConn frames a stream connection with length prefixes.
type tcpConn struct {
	conn   net.Conn
	framer *Framer
	opts   connOptions

	writeMu sync.Mutex
	fault   fault
}

func newTCPConn(conn net.Conn, opts connOptions, logger log.Logger, connID string) *tcpConn {
	framer := NewFramer(conn, opts.maxSize)
	if logger != nil {
		framer.SetLogger(logger, connID)
	}
	c := &tcpConn{conn: conn, framer: framer, opts: opts}
	framer.SetHeartbeatHandler(c.heartbeat)
	return c
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	c.extendRead()
	data, err := c.framer.ReadFrame()
	if err != nil {
		return nil, readError(err, &c.fault, c.opts.idleTimeout)
	}
	return data, nil
}

// heartbeat answers pings. Every heartbeat counts as traffic.
func (c *tcpConn) heartbeat(ping bool) error {
	c.extendRead()
	if !ping {
		return nil
	}
	return c.write(func() error { return c.framer.WriteHeartbeat(false) })
}

func (c *tcpConn) extendRead() {
	if c.opts.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))
	}
}

func (c *tcpConn) WriteFrame(data []byte) error {
	return c.write(func() error { return c.framer.WriteFrame(data) })
}

func (c *tcpConn) Ping() error {
	return c.write(func() error { return c.framer.WriteHeartbeat(true) })
}

// write runs fn under the write deadline. The deadline is set and cleared
// under writeMu so concurrent writers cannot clear each other's bound.
func (c *tcpConn) write(fn func() error) error {
	if err := c.fault.get(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	err := fn()
	if err != nil && !isLocalWriteError(err) {
		c.fault.set(err, c.conn.Close)
	}
	return err
}

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
func (c *tcpConn) Close() error       { return c.conn.Close() }

// wsConn carries one frame per binary websocket message. Heartbeats are
// websocket ping and pong control messages.
type wsConn struct {
	conn    *websocket.Conn
	opts    connOptions
	writeMu sync.Mutex
	fault   fault

	logger log.Logger
	connID string
}

func newWSConn(conn *websocket.Conn, opts connOptions, logger log.Logger, connID string) *wsConn {
	if opts.maxSize == 0 {
		opts.maxSize = DefaultMaxFrameSize
	}
	conn.SetReadLimit(int64(opts.maxSize))

	c := &wsConn{conn: conn, opts: opts, logger: logger, connID: connID}
	conn.SetPingHandler(func(appData string) error {
		c.extendRead()
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), c.controlDeadline())
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
			return err
		}
		return nil
	})
	conn.SetPongHandler(func(string) error {
		c.extendRead()
		return nil
	})
	return c
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	for {
		c.extendRead()
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if err == websocket.ErrReadLimit {
				return nil, fmt.Errorf("%w: read limit %d", ErrFrameTooLarge, c.opts.maxSize)
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			return nil, readError(err, &c.fault, c.opts.idleTimeout)
		}
		if mt != websocket.BinaryMessage && mt != websocket.TextMessage {
			continue
		}
		if len(data) == 0 {
			return nil, ErrFrameEmpty
		}
		if c.logger != nil {
			c.logger.Log(log.NewFrameEvent(c.connID, log.DirectionIn, data, 0))
		}
		return data, nil
	}
}

func (c *wsConn) extendRead() {
	if c.opts.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.idleTimeout))
	}
}

func (c *wsConn) controlDeadline() time.Time {
	timeout := c.opts.writeTimeout
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return time.Now().Add(timeout)
}

func (c *wsConn) WriteFrame(data []byte) error {
	if len(data) == 0 {
		return ErrFrameEmpty
	}
	if uint32(len(data)) > c.opts.maxSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), c.opts.maxSize)
	}
	if err := c.fault.get(); err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.opts.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout))
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		err = fmt.Errorf("write frame: %w", err)
		c.fault.set(err, c.conn.Close)
		return err
	}
	if c.logger != nil {
		c.logger.Log(log.NewFrameEvent(c.connID, log.DirectionOut, data, 0))
	}
	return nil
}

func (c *wsConn) Ping() error {
	if err := c.fault.get(); err != nil {
		return err
	}
	if err := c.conn.WriteControl(websocket.PingMessage, nil, c.controlDeadline()); err != nil {
		err = fmt.Errorf("write ping: %w", err)
		c.fault.set(err, c.conn.Close)
		return err
	}
	return nil
}

func (c *wsConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.conn.Close()
}

// dialConn establishes a framed connection to addr.
func dialConn(ctx context.Context, addr Address, timeout time.Duration, opts connOptions, logger log.Logger, connID string) (frameConn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	switch addr.Scheme {
	case SchemeTCP:
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr.Host)
		if err != nil {
			return nil, err
		}
		return newTCPConn(conn, opts, logger, connID), nil

	case SchemeWebSocket:
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr.String(), nil)
		if err != nil {
			return nil, err
		}
		return newWSConn(conn, opts, logger, connID), nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, addr.Scheme)
	}
}
