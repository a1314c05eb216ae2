package socket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrNoListener is the cause reported with connect_delay while nothing is
// bound at a Fabric address.
var ErrNoListener = errors.New("no listener bound")

// ErrAddressInUse is returned by Fabric.Listen for a bound address.
var ErrAddressInUse = errors.New("address already in use")

// Fabric is an in-process socket fabric implementing Dialer and Binder.
//
// Sockets dialed to an unbound address report connect_delay and connect as
// soon as a listener binds. Closing a listener disconnects its sockets, which
// then wait for the address to be bound again.
type Fabric struct {
	mu        sync.Mutex
	listeners map[string]*memListener
	sockets   map[*memSocket]struct{}
	sendErr   map[string]error
}

// NewFabric creates an empty fabric.
func NewFabric() *Fabric {
	return &Fabric{
		listeners: make(map[string]*memListener),
		sockets:   make(map[*memSocket]struct{}),
		sendErr:   make(map[string]error),
	}
}

// Dial implements Dialer.
func (f *Fabric) Dial(kind Kind, address string, handler Handler) (Socket, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}
	if handler == nil {
		handler = func(Event) {}
	}

	s := &memSocket{
		fabric:  f,
		kind:    kind,
		address: address,
		handler: handler,
		events:  newQueue(),
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sockets[s] = struct{}{}
	if l, ok := f.listeners[address]; ok {
		f.attachLocked(s, l)
	} else {
		s.emit(Event{Kind: EventConnectDelay, Err: ErrNoListener})
	}
	return s, nil
}

// Listen implements Binder.
func (f *Fabric) Listen(address string, cfg ListenConfig) (Listener, error) {
	if _, err := ParseAddress(address); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.listeners[address]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAddressInUse, address)
	}

	l := &memListener{
		fabric:  f,
		address: address,
		cfg:     cfg,
		calls:   newQueue(),
	}
	f.listeners[address] = l

	for s := range f.sockets {
		if s.address == address && s.peer == nil {
			s.emit(Event{Kind: EventConnectRetry})
			f.attachLocked(s, l)
		}
	}
	return l, nil
}

// Emit injects ev into every open socket dialed to address, without changing
// the fabric's own connection state. It returns the number of sockets reached.
func (f *Fabric) Emit(address string, ev Event) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for s := range f.sockets {
		if s.address == address {
			s.emit(ev)
			n++
		}
	}
	return n
}

// FailSends makes Send on sockets dialed to address fail with err. A nil err
// restores normal sending.
func (f *Fabric) FailSends(address string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.sendErr, address)
		return
	}
	f.sendErr[address] = err
}

// Sockets returns the number of open sockets dialed to address.
func (f *Fabric) Sockets(address string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for s := range f.sockets {
		if s.address == address {
			n++
		}
	}
	return n
}

// attachLocked connects s to l. f.mu must be held.
func (f *Fabric) attachLocked(s *memSocket, l *memListener) {
	p := &memPeer{id: uuid.New().String(), socket: s, listener: l}
	s.peer = p
	l.peers = append(l.peers, p)

	s.emit(Event{Kind: EventConnect})
	l.call(func(cfg ListenConfig) {
		if cfg.OnConnect != nil {
			cfg.OnConnect(p)
		}
	})
}

// detachLocked disconnects p from both ends. f.mu must be held.
func (f *Fabric) detachLocked(p *memPeer) {
	if p.closed {
		return
	}
	p.closed = true
	p.socket.peer = nil

	l := p.listener
	for i, lp := range l.peers {
		if lp == p {
			l.peers = append(l.peers[:i], l.peers[i+1:]...)
			break
		}
	}
}

// memSocket is a client socket on a Fabric.
type memSocket struct {
	fabric  *Fabric
	kind    Kind
	address string
	handler Handler
	events  *queue

	// Guarded by fabric.mu.
	peer   *memPeer
	closed bool
}

func (s *memSocket) Address() string {
	return s.address
}

func (s *memSocket) Send(data []byte) error {
	if s.kind == Subscriber {
		return ErrNotSupported
	}
	if len(data) == 0 {
		return ErrFrameEmpty
	}

	f := s.fabric
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if err := f.sendErr[s.address]; err != nil {
		return err
	}
	if s.peer == nil {
		return ErrNotConnected
	}

	p := s.peer
	frame := append([]byte(nil), data...)
	p.listener.call(func(cfg ListenConfig) {
		if cfg.OnMessage != nil {
			cfg.OnMessage(p, frame)
		}
	})
	return nil
}

func (s *memSocket) Close() error {
	f := s.fabric
	f.mu.Lock()
	defer f.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	delete(f.sockets, s)

	if p := s.peer; p != nil {
		f.detachLocked(p)
		p.listener.call(func(cfg ListenConfig) {
			if cfg.OnDisconnect != nil {
				cfg.OnDisconnect(p)
			}
		})
	}

	s.emit(Event{Kind: EventClose})
	s.events.close()
	return nil
}

// emit queues ev for the handler. Callers hold fabric.mu.
func (s *memSocket) emit(ev Event) {
	ev.Address = s.address
	s.events.push(func() { s.handler(ev) })
}

// memListener is a bound Fabric address.
type memListener struct {
	fabric  *Fabric
	address string
	cfg     ListenConfig
	calls   *queue

	// Guarded by fabric.mu.
	peers  []*memPeer
	closed bool
}

func (l *memListener) Address() string {
	return l.address
}

func (l *memListener) Close() error {
	f := l.fabric
	f.mu.Lock()
	defer f.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	delete(f.listeners, l.address)

	for _, p := range append([]*memPeer(nil), l.peers...) {
		s := p.socket
		f.detachLocked(p)
		s.emit(Event{Kind: EventDisconnect, Err: ErrClosed})
		s.emit(Event{Kind: EventConnectDelay, Err: ErrNoListener})
	}
	l.calls.close()
	return nil
}

// call queues a listener callback.
func (l *memListener) call(fn func(ListenConfig)) {
	cfg := l.cfg
	l.calls.push(func() { fn(cfg) })
}

// memPeer is the listener side of a Fabric connection.
type memPeer struct {
	id       string
	socket   *memSocket
	listener *memListener

	// Guarded by fabric.mu.
	closed bool
}

func (p *memPeer) ID() string         { return p.id }
func (p *memPeer) RemoteAddr() string { return "mem:" + p.id }

func (p *memPeer) Send(data []byte) error {
	f := p.listener.fabric
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	p.socket.emit(Event{Kind: EventMessage, Data: append([]byte(nil), data...)})
	return nil
}

// Close drops the connection. The client socket reconnects at once while the
// listener stays bound.
func (p *memPeer) Close() error {
	f := p.listener.fabric
	f.mu.Lock()
	defer f.mu.Unlock()

	if p.closed {
		return nil
	}
	s, l := p.socket, p.listener
	f.detachLocked(p)
	l.call(func(cfg ListenConfig) {
		if cfg.OnDisconnect != nil {
			cfg.OnDisconnect(p)
		}
	})

	s.emit(Event{Kind: EventDisconnect, Err: ErrClosed})
	if !l.closed && !s.closed {
		s.emit(Event{Kind: EventConnectRetry})
		f.attachLocked(s, l)
	}
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Dialer   = (*Fabric)(nil)
	_ Binder   = (*Fabric)(nil)
	_ Socket   = (*memSocket)(nil)
	_ Listener = (*memListener)(nil)
	_ Peer     = (*memPeer)(nil)
)
