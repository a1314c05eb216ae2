package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tdrs-protocol/tdrs-go/pkg/control"
	"github.com/tdrs-protocol/tdrs-go/pkg/delivery"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

// Relay errors.
var (
	ErrAlreadyRunning = errors.New("relay already running")
	ErrNotRunning     = errors.New("relay not running")
	ErrMissingAddress = errors.New("relay address missing")
)

// Config configures a relay server.
type Config struct {
	// PublisherAddress is the broadcast endpoint (e.g. "tcp://0.0.0.0:12300").
	PublisherAddress string

	// ReceiverAddress is the request endpoint (e.g. "tcp://0.0.0.0:12301").
	ReceiverAddress string

	// Binder creates the listeners (default: socket.NetBinder).
	Binder socket.Binder

	// WriteTimeout and KeepAlive configure the default binder.
	WriteTimeout time.Duration
	KeepAlive    socket.KeepAliveConfig

	// Logger for operational logging (optional).
	Logger *slog.Logger

	// ProtocolLogger captures control frames and replies (optional).
	ProtocolLogger log.Logger

	// Metrics receives relay counters (optional).
	Metrics *metrics.Relay
}

// Server is a relay peer.
type Server struct {
	config  Config
	logger  *slog.Logger
	metrics *metrics.Relay

	mu          sync.RWMutex
	running     bool
	pub         socket.Listener
	rec         socket.Listener
	subscribers map[string]socket.Peer
	requesters  map[string]socket.Peer
}

// NewServer creates a relay server.
func NewServer(config Config) (*Server, error) {
	if config.PublisherAddress == "" || config.ReceiverAddress == "" {
		return nil, ErrMissingAddress
	}
	if config.Binder == nil {
		config.Binder = &socket.NetBinder{
			WriteTimeout:   config.WriteTimeout,
			KeepAlive:      config.KeepAlive,
			ProtocolLogger: config.ProtocolLogger,
			Logger:         config.Logger,
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := config.Metrics
	if m == nil {
		m = metrics.NewRelay(nil)
	}

	return &Server{
		config:      config,
		logger:      logger.With("component", "relay"),
		metrics:     m,
		subscribers: make(map[string]socket.Peer),
		requesters:  make(map[string]socket.Peer),
	}, nil
}

// Start binds both endpoints.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}

	var pub, rec socket.Listener
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l, err := s.config.Binder.Listen(s.config.PublisherAddress, socket.ListenConfig{
			OnConnect:    s.subscriberConnected,
			OnDisconnect: s.subscriberDisconnected,
			OnError:      s.peerError,
		})
		if err != nil {
			return fmt.Errorf("publisher endpoint: %w", err)
		}
		pub = l
		return gctx.Err()
	})
	g.Go(func() error {
		l, err := s.config.Binder.Listen(s.config.ReceiverAddress, socket.ListenConfig{
			OnConnect:    s.requesterConnected,
			OnMessage:    s.handleRequest,
			OnDisconnect: s.requesterDisconnected,
			OnError:      s.peerError,
		})
		if err != nil {
			return fmt.Errorf("receiver endpoint: %w", err)
		}
		rec = l
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		for _, l := range []socket.Listener{pub, rec} {
			if l != nil {
				l.Close()
			}
		}
		return err
	}

	s.pub, s.rec = pub, rec
	s.running = true
	s.logState("", "RUNNING")
	s.logger.Info("relay started", "publisher", pub.Address(), "receiver", rec.Address())
	return nil
}

// Stop broadcasts TERMINATE and closes both endpoints.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	pub, rec := s.pub, s.rec
	subs := s.peersLocked(s.subscribers)
	s.mu.Unlock()

	terminate := []byte(control.Terminate)
	for _, p := range subs {
		if err := p.Send(terminate); err != nil {
			s.logger.Debug("terminate not delivered", "peer", p.ID(), "error", err)
		}
	}
	s.logControl(log.DirectionOut, &log.ControlMsgEvent{Type: log.ControlMsgTerminate})

	err := multierr.Combine(rec.Close(), pub.Close())

	s.mu.Lock()
	clear(s.subscribers)
	clear(s.requesters)
	s.mu.Unlock()
	s.metrics.SetSubscribers(0)
	s.metrics.SetRequesters(0)

	s.logState("RUNNING", "STOPPED")
	s.logger.Info("relay stopped")
	return err
}

// PublisherAddress returns the bound publisher address.
func (s *Server) PublisherAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pub == nil {
		return s.config.PublisherAddress
	}
	return s.pub.Address()
}

// ReceiverAddress returns the bound receiver address.
func (s *Server) ReceiverAddress() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return s.config.ReceiverAddress
	}
	return s.rec.Address()
}

// Subscribers returns the number of attached subscribers.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Broadcast sends frame to all subscribers and returns how many received it.
// Control frames such as PEER lines are injected this way. Subscribers are
// written concurrently; a subscriber that stops reading is dropped once its
// write times out and never delays delivery to the others.
func (s *Server) Broadcast(frame []byte) (int, error) {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return 0, ErrNotRunning
	}
	subs := s.peersLocked(s.subscribers)
	s.mu.RUnlock()

	var delivered atomic.Int64
	var g errgroup.Group
	for _, p := range subs {
		g.Go(func() error {
			if err := p.Send(frame); err != nil {
				s.logger.Debug("broadcast failed", "peer", p.ID(), "error", err)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	g.Wait()

	n := int(delivered.Load())
	if n > 0 {
		s.metrics.IncBroadcast()
	}
	return n, nil
}

func (s *Server) handleRequest(p socket.Peer, frame []byte) {
	hash := delivery.Hash(frame)

	status := control.ReplyRejected
	if len(frame) > 0 {
		switch n, err := s.Broadcast(frame); {
		case err != nil:
			s.logger.Debug("request while stopping", "hash", hash)
		case n == 0:
			s.logger.Debug("request rejected, no subscriber", "hash", hash)
		default:
			status = control.ReplyAccepted
		}
	}

	s.metrics.IncRequest(status)
	if err := p.Send(control.FormatReply(status, hash)); err != nil {
		s.logger.Warn("reply failed", "peer", p.ID(), "hash", hash, "error", err)
		return
	}

	ctrl := &log.ControlMsgEvent{Type: log.ControlMsgAccepted, Hash: hash}
	if status == control.ReplyRejected {
		ctrl.Type = log.ControlMsgRejected
	}
	s.logControl(log.DirectionOut, ctrl)
}

func (s *Server) subscriberConnected(p socket.Peer) {
	s.mu.Lock()
	s.subscribers[p.ID()] = p
	n := len(s.subscribers)
	s.mu.Unlock()

	s.metrics.SetSubscribers(n)
	s.logger.Debug("subscriber attached", "peer", p.ID(), "remote", p.RemoteAddr())
}

func (s *Server) subscriberDisconnected(p socket.Peer) {
	s.mu.Lock()
	delete(s.subscribers, p.ID())
	n := len(s.subscribers)
	s.mu.Unlock()

	s.metrics.SetSubscribers(n)
	s.logger.Debug("subscriber detached", "peer", p.ID())
}

func (s *Server) requesterConnected(p socket.Peer) {
	s.mu.Lock()
	s.requesters[p.ID()] = p
	n := len(s.requesters)
	s.mu.Unlock()

	s.metrics.SetRequesters(n)
	s.logger.Debug("requester attached", "peer", p.ID(), "remote", p.RemoteAddr())
}

func (s *Server) requesterDisconnected(p socket.Peer) {
	s.mu.Lock()
	delete(s.requesters, p.ID())
	n := len(s.requesters)
	s.mu.Unlock()

	s.metrics.SetRequesters(n)
	s.logger.Debug("requester detached", "peer", p.ID())
}

func (s *Server) peerError(p socket.Peer, err error) {
	if p == nil {
		s.logger.Warn("endpoint error", "error", err)
		return
	}
	s.logger.Warn("peer error", "peer", p.ID(), "error", err)
}

func (s *Server) peersLocked(m map[string]socket.Peer) []socket.Peer {
	out := make([]socket.Peer, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	return out
}

func (s *Server) logControl(dir log.Direction, ctrl *log.ControlMsgEvent) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp:  time.Now(),
		Direction:  dir,
		Layer:      log.LayerRelay,
		Category:   log.CategoryControl,
		ControlMsg: ctrl,
	})
}

func (s *Server) logState(oldState, newState string) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerRelay,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityRelay,
			OldState: oldState,
			NewState: newState,
		},
	})
}
