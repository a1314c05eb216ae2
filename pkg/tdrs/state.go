package tdrs

import (
	"github.com/google/uuid"

	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/delivery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/pool"
)

// ChannelState is a snapshot of one channel.
type ChannelState struct {
	State      connection.State
	RetryCount int
	HasSocket  bool
}

// ConnectionState is a snapshot of one pooled connection.
type ConnectionState struct {
	Link      link.Link
	Active    bool
	Ready     bool
	Publisher ChannelState
	Receiver  ChannelState
}

// State is a snapshot of a transport.
type State struct {
	Identity    uuid.UUID
	Links       []link.Link
	Connections []ConnectionState

	// Active is the active link, or nil.
	Active *link.Link

	// CachedPackets counts packets awaiting their echo or rejected.
	CachedPackets int

	// Undelivered counts packets the relay rejected.
	Undelivered int
}

// State returns a snapshot of the links, connections and cache.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := State{
		Identity:      t.cfg.Identity,
		Links:         t.links.Clone(),
		CachedPackets: t.cache.Len(),
		Undelivered:   len(t.cache.WithStatus(delivery.StatusUndelivered)),
	}
	for _, c := range t.pool.All() {
		st.Connections = append(st.Connections, ConnectionState{
			Link:      c.Link,
			Active:    c.Active,
			Ready:     c.Ready(),
			Publisher: channelState(&c.Publisher),
			Receiver:  channelState(&c.Receiver),
		})
		if c.Active {
			l := c.Link
			st.Active = &l
		}
	}
	return st
}

func channelState(ch *pool.Channel) ChannelState {
	return ChannelState{
		State:      ch.State(),
		RetryCount: ch.RetryCount(),
		HasSocket:  ch.Socket != nil,
	}
}
