package socket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/tdrs-protocol/tdrs-go/pkg/log"
)

// NetBinder binds tcp and ws listeners.
type NetBinder struct {
	// MaxFrameSize is the maximum frame size (default: 1 MiB).
	MaxFrameSize uint32

	// WriteTimeout bounds a single frame write to a peer (default: 5s,
	// negative disables). A peer whose write times out is dropped.
	WriteTimeout time.Duration

	// KeepAlive configures pings and the read idle bound per peer. The zero
	// value selects the defaults.
	KeepAlive KeepAliveConfig

	// ProtocolLogger captures frames and connection state (optional).
	ProtocolLogger log.Logger

	// Logger for operational logging (optional).
	Logger *slog.Logger
}

// Listen implements Binder.
func (b *NetBinder) Listen(address string, cfg ListenConfig) (Listener, error) {
	addr, err := ParseAddress(address)
	if err != nil {
		return nil, err
	}

	logger := b.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	ln, err := net.Listen("tcp", addr.Host)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", address, err)
	}

	l := &netListener{
		scheme:  addr.Scheme,
		path:    addr.Path,
		ln:      ln,
		cfg:     cfg,
		opts:    newConnOptions(b.MaxFrameSize, b.WriteTimeout, b.KeepAlive),
		ka:      b.KeepAlive,
		plog:    b.ProtocolLogger,
		logger:  logger.With("listener", address),
		peers:   make(map[*netPeer]struct{}),
	}
	l.ctx, l.cancel = context.WithCancel(context.Background())

	switch addr.Scheme {
	case SchemeTCP:
		l.wg.Add(1)
		go l.acceptLoop()
	case SchemeWebSocket:
		path := addr.Path
		if path == "" {
			path = "/"
		}
		mux := http.NewServeMux()
		mux.HandleFunc(path, l.serveWS)
		l.http = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			if err := l.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				l.reportError(nil, fmt.Errorf("serve: %w", err))
			}
		}()
	}

	return l, nil
}

// netListener accepts client sockets.
type netListener struct {
	scheme  string
	path    string
	ln      net.Listener
	http    *http.Server
	cfg     ListenConfig
	opts    connOptions
	ka      KeepAliveConfig
	plog    log.Logger
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	peers  map[*netPeer]struct{}
	closed bool
}

// Address implements Listener.
func (l *netListener) Address() string {
	return l.scheme + "://" + l.ln.Addr().String() + l.path
}

// Close implements Listener.
func (l *netListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	peers := make([]*netPeer, 0, len(l.peers))
	for p := range l.peers {
		peers = append(peers, p)
	}
	l.mu.Unlock()

	l.cancel()

	var err error
	if l.http != nil {
		err = multierr.Append(err, l.http.Close())
	} else {
		err = multierr.Append(err, l.ln.Close())
	}
	for _, p := range peers {
		p.Close()
	}

	l.wg.Wait()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

func (l *netListener) acceptLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			l.reportError(nil, fmt.Errorf("accept: %w", err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		connID := uuid.New().String()
		if p := l.register(newTCPConn(conn, l.opts, l.plog, connID), connID); p != nil {
			go l.handle(p)
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func (l *netListener) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.reportError(nil, fmt.Errorf("upgrade: %w", err))
		return
	}

	connID := uuid.New().String()
	if p := l.register(newWSConn(conn, l.opts, l.plog, connID), connID); p != nil {
		l.handle(p)
	}
}

// register tracks a new connection. It returns nil and drops the connection
// when the listener is closed.
func (l *netListener) register(conn frameConn, connID string) *netPeer {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		conn.Close()
		return nil
	}
	p := &netPeer{id: connID, conn: conn}
	l.peers[p] = struct{}{}
	l.wg.Add(1)
	return p
}

// handle runs one peer connection until it ends.
func (l *netListener) handle(p *netPeer) {
	defer l.wg.Done()

	l.logState(p, "", "CONNECTED")
	l.logger.Debug("peer connected", "peer", p.id, "remote", p.RemoteAddr())
	if l.cfg.OnConnect != nil {
		l.cfg.OnConnect(p)
	}

	done := make(chan struct{})
	go keepAlive(done, p.conn, l.ka)

	for {
		data, err := p.conn.ReadFrame()
		if err != nil {
			if err != io.EOF && l.ctx.Err() == nil && !p.isClosed() {
				l.reportError(p, err)
			}
			break
		}
		if l.cfg.OnMessage != nil {
			l.cfg.OnMessage(p, data)
		}
	}
	close(done)

	p.Close()
	l.mu.Lock()
	delete(l.peers, p)
	l.mu.Unlock()

	l.logState(p, "CONNECTED", "DISCONNECTED")
	l.logger.Debug("peer disconnected", "peer", p.id)
	if l.cfg.OnDisconnect != nil {
		l.cfg.OnDisconnect(p)
	}
}

func (l *netListener) reportError(p Peer, err error) {
	l.logger.Warn("listener error", "error", err)
	if l.cfg.OnError != nil {
		l.cfg.OnError(p, err)
	}
}

func (l *netListener) logState(p *netPeer, oldState, newState string) {
	if l.plog == nil {
		return
	}
	l.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: p.id,
		Layer:        log.LayerSocket,
		Category:     log.CategoryState,
		RemoteAddr:   p.conn.RemoteAddr(),
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: oldState,
			NewState: newState,
		},
	})
}

// netPeer is an accepted connection.
type netPeer struct {
	id        string
	conn      frameConn
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (p *netPeer) ID() string         { return p.id }
func (p *netPeer) RemoteAddr() string { return p.conn.RemoteAddr() }

// Send writes one frame. A write that fails on the wire drops the peer.
func (p *netPeer) Send(data []byte) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.conn.WriteFrame(data)
}

func (p *netPeer) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		err = p.conn.Close()
	})
	return err
}

func (p *netPeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Compile-time interface satisfaction checks.
var (
	_ Binder   = (*NetBinder)(nil)
	_ Listener = (*netListener)(nil)
	_ Peer     = (*netPeer)(nil)
)
