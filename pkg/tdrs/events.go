package tdrs

import (
	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/pool"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

// EventType identifies an application event.
type EventType uint8

const (
	// EventMessage carries a decoded payload from another node.
	EventMessage EventType = iota

	// EventTerminate signals that the relay is shutting down.
	EventTerminate

	// EventPeerEntered reports a discovered relay.
	EventPeerEntered

	// EventPeerExited reports a relay that left.
	EventPeerExited
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventMessage:
		return "MESSAGE"
	case EventTerminate:
		return "TERMINATE"
	case EventPeerEntered:
		return "PEER_ENTERED"
	case EventPeerExited:
		return "PEER_EXITED"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to application handlers.
type Event struct {
	Type EventType

	// Payload is the decoded message (EventMessage).
	Payload []byte

	// Link is the peer's link (EventPeerEntered, EventPeerExited).
	Link link.Link
}

// EventHandler receives application events. Handlers run synchronously
// on the socket goroutine that produced the event, in arrival order, and
// must not block for long.
type EventHandler func(Event)

// eventKey selects the handler of a socket event.
type eventKey struct {
	role connection.Role
	kind socket.EventKind
}

// socketHandler processes a socket event of connection c with t.mu held.
// It returns the application events to deliver once the lock is released.
type socketHandler func(c *pool.Connection, role connection.Role, ev socket.Event) []Event

// socketRef names the socket a handler closure belongs to. It is set
// under t.mu right after Dial returns.
type socketRef struct {
	socket socket.Socket
}

func (t *Transport) socketHandlers() map[eventKey]socketHandler {
	m := make(map[eventKey]socketHandler)
	for _, role := range []connection.Role{connection.RolePublisher, connection.RoleReceiver} {
		m[eventKey{role, socket.EventConnect}] = t.onConnect
		m[eventKey{role, socket.EventConnectDelay}] = t.onDisconnect
		m[eventKey{role, socket.EventConnectRetry}] = t.onConnectRetry
		m[eventKey{role, socket.EventDisconnect}] = t.onDisconnect
		m[eventKey{role, socket.EventClose}] = t.onDisconnect
		m[eventKey{role, socket.EventCloseError}] = t.onDisconnect
		m[eventKey{role, socket.EventMonitorError}] = t.onMonitorError
	}
	m[eventKey{connection.RolePublisher, socket.EventMessage}] = t.handlePublisherMessage
	m[eventKey{connection.RoleReceiver, socket.EventMessage}] = t.handleReceiverMessage
	return m
}

// onSocketEvent routes one socket event through the handler table. Events
// of sockets no longer held by the pool are dropped.
func (t *Transport) onSocketEvent(ref *socketRef, ev socket.Event) {
	t.mu.Lock()
	c, role, ok := t.pool.BySocket(ref.socket)
	if !ok || t.closed {
		t.mu.Unlock()
		t.logger.Debug("stale socket event", "event", ev.Kind.String(), "address", ev.Address)
		return
	}

	var out []Event
	if h, ok := t.handlers[eventKey{role, ev.Kind}]; ok {
		out = h(c, role, ev)
	}
	t.mu.Unlock()

	t.emit(out)
}

func (t *Transport) onConnect(c *pool.Connection, role connection.Role, ev socket.Event) []Event {
	ch := c.Channel(role)
	old := ch.State()
	ch.MarkConnected()
	t.logChannelState(c, role, old, ch.State(), "")

	if c.Ready() {
		t.logger.Info("connection ready", "link", c.Link.String())
	}
	return nil
}

func (t *Transport) onDisconnect(c *pool.Connection, role connection.Role, ev socket.Event) []Event {
	ch := c.Channel(role)
	old := ch.State()
	ch.MarkDisconnected()
	t.logChannelState(c, role, old, ch.State(), ev.Kind.String())

	switch ev.Kind {
	case socket.EventCloseError:
		t.logger.Warn("socket close failed", "channel", role.String(), "address", ev.Address, "error", ev.Err)
	case socket.EventDisconnect:
		t.logger.Info("channel disconnected", "channel", role.String(), "address", ev.Address, "error", ev.Err)
	default:
		t.logger.Debug("channel down", "channel", role.String(), "event", ev.Kind.String(), "delay", ev.Delay)
	}
	return nil
}

func (t *Transport) onConnectRetry(c *pool.Connection, role connection.Role, ev socket.Event) []Event {
	ch := c.Channel(role)
	old := ch.State()
	failover := ch.Retry(t.cfg.ConnectRetryBeforeFailover)
	t.logChannelState(c, role, old, ch.State(), "connect_retry")

	if !failover {
		t.logger.Debug("connect retry", "channel", role.String(), "address", ev.Address, "retries", ch.RetryCount())
		return nil
	}

	t.logger.Warn("retry threshold exceeded, failing over",
		"channel", role.String(), "link", c.Link.String(), "threshold", t.cfg.ConnectRetryBeforeFailover)
	t.metrics.IncFailover()
	if err := t.reconnectLocked(); err != nil {
		t.logger.Error("failover failed", "error", err)
	}
	return nil
}

func (t *Transport) onMonitorError(c *pool.Connection, role connection.Role, ev socket.Event) []Event {
	t.logger.Warn("socket error", "channel", role.String(), "address", ev.Address, "error", ev.Err)
	t.logError(log.LayerSocket, errString(ev.Err), false, "monitor_error", c.Link.ID)
	return nil
}

// OnEvent registers an application event handler.
func (t *Transport) OnEvent(handler EventHandler) {
	t.hmu.Lock()
	defer t.hmu.Unlock()
	t.eventHandlers = append(t.eventHandlers, handler)
}

// emit delivers events to all handlers. Callers must not hold t.mu.
func (t *Transport) emit(events []Event) {
	if len(events) == 0 {
		return
	}
	t.hmu.RLock()
	handlers := append([]EventHandler(nil), t.eventHandlers...)
	t.hmu.RUnlock()

	for _, ev := range events {
		for _, h := range handlers {
			h(ev)
		}
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
