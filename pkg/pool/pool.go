// Package pool tracks the connections of a transport session, one per known
// link, of which at most one is active.
//
// Pool is not safe for concurrent use. The transport serializes all access
// behind its own lock.
package pool

import (
	"math/rand"

	"go.uber.org/multierr"

	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

// Channel is one of a connection's two channels with its socket handle.
type Channel struct {
	connection.Channel

	// Socket is nil while the channel has no socket.
	Socket socket.Socket
}

// release closes the socket and resets the channel.
func (c *Channel) release() error {
	var err error
	if c.Socket != nil {
		err = c.Socket.Close()
	}
	c.Socket = nil
	c.Reset()
	return err
}

// Connection pairs a link with its live channel state.
type Connection struct {
	Link   link.Link
	Active bool

	// Publisher is the broadcast channel (subscriber socket).
	Publisher Channel

	// Receiver is the request channel (request socket).
	Receiver Channel
}

// Channel returns the channel for role.
func (c *Connection) Channel(role connection.Role) *Channel {
	if role == connection.RoleReceiver {
		return &c.Receiver
	}
	return &c.Publisher
}

// Ready reports whether the connection is active with both channels connected.
func (c *Connection) Ready() bool {
	return c.Active && c.Publisher.Connected() && c.Receiver.Connected()
}

// Owns reports which channel of c holds s.
func (c *Connection) Owns(s socket.Socket) (connection.Role, bool) {
	switch {
	case s == nil:
		return 0, false
	case c.Publisher.Socket == s:
		return connection.RolePublisher, true
	case c.Receiver.Socket == s:
		return connection.RoleReceiver, true
	default:
		return 0, false
	}
}

// Release closes both sockets and deactivates the connection.
func (c *Connection) Release() error {
	c.Active = false
	return multierr.Combine(c.Publisher.release(), c.Receiver.release())
}

// Pool holds the connections of a session.
type Pool struct {
	conns []*Connection
	rng   *rand.Rand
}

// New creates an empty pool. rng drives Pick; nil seeds one.
func New(rng *rand.Rand) *Pool {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Pool{rng: rng}
}

// Reconcile adds an inactive connection for every link not yet tracked.
// Existing connections are left untouched. It returns the number added.
func (p *Pool) Reconcile(links link.Set) int {
	added := 0
	for _, l := range links {
		if p.IsTracked(l) {
			continue
		}
		p.conns = append(p.conns, &Connection{Link: l})
		added++
	}
	return added
}

// Evict removes connections whose link is not in links. With disconnectFirst
// their sockets are released before removal. It returns the removed
// connections and any release errors.
func (p *Pool) Evict(links link.Set, disconnectFirst bool) ([]*Connection, error) {
	var (
		kept    = p.conns[:0]
		removed []*Connection
		err     error
	)
	for _, c := range p.conns {
		if links.Contains(c.Link) {
			kept = append(kept, c)
			continue
		}
		if disconnectFirst {
			err = multierr.Append(err, c.Release())
		}
		removed = append(removed, c)
	}
	for i := len(kept); i < len(p.conns); i++ {
		p.conns[i] = nil
	}
	p.conns = kept
	return removed, err
}

// Find returns the connection for l, or nil.
func (p *Pool) Find(l link.Link) *Connection {
	for _, c := range p.conns {
		if c.Link.Equal(l) {
			return c
		}
	}
	return nil
}

// IsTracked reports whether l has a connection.
func (p *Pool) IsTracked(l link.Link) bool {
	return p.Find(l) != nil
}

// Active returns the active connection, or nil.
func (p *Pool) Active() *Connection {
	for _, c := range p.conns {
		if c.Active {
			return c
		}
	}
	return nil
}

// Activate marks c active and every other connection inactive.
func (p *Pool) Activate(c *Connection) {
	for _, other := range p.conns {
		other.Active = other == c
	}
}

// Pick returns a uniformly random connection, or nil if the pool is empty.
func (p *Pool) Pick() *Connection {
	if len(p.conns) == 0 {
		return nil
	}
	return p.conns[RandomInteger(p.rng, 0, len(p.conns)-1)]
}

// BySocket finds the connection and channel holding s.
func (p *Pool) BySocket(s socket.Socket) (*Connection, connection.Role, bool) {
	for _, c := range p.conns {
		if role, ok := c.Owns(s); ok {
			return c, role, true
		}
	}
	return nil, 0, false
}

// Len returns the number of connections.
func (p *Pool) Len() int {
	return len(p.conns)
}

// All returns the connections in insertion order.
func (p *Pool) All() []*Connection {
	return append([]*Connection(nil), p.conns...)
}

// RandomInteger returns a uniformly distributed integer in [min, max].
func RandomInteger(rng *rand.Rand, min, max int) int {
	if max <= min {
		return min
	}
	return rng.Intn(max-min+1) + min
}
