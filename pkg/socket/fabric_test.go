package socket

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFabricConnectWhenListenerAppears(t *testing.T) {
	f := NewFabric()

	rec := &recorder{}
	s, err := f.Dial(Requester, "tcp://relay:2", rec.handle)
	require.NoError(t, err)

	waitFor(t, func() bool { return rec.count(EventConnectDelay) == 1 })
	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)

	ln, err := f.Listen("tcp://relay:2", ListenConfig{})
	require.NoError(t, err)
	defer ln.Close()

	waitFor(t, func() bool { return rec.count(EventConnect) == 1 })
	assert.Equal(t, []EventKind{EventConnectDelay, EventConnectRetry, EventConnect}, rec.kinds())
}

func TestFabricRequestReply(t *testing.T) {
	f := NewFabric()

	var mu sync.Mutex
	var received []string
	ln, err := f.Listen("tcp://relay:2", ListenConfig{
		OnMessage: func(p Peer, data []byte) {
			mu.Lock()
			received = append(received, string(data))
			mu.Unlock()
			p.Send([]byte("OOK:" + string(data)))
		},
	})
	require.NoError(t, err)
	defer ln.Close()

	rec := &recorder{}
	s, err := f.Dial(Requester, "tcp://relay:2", rec.handle)
	require.NoError(t, err)

	require.NoError(t, s.Send([]byte("a")))
	require.NoError(t, s.Send([]byte("b")))

	waitFor(t, func() bool { return len(rec.messages()) == 2 })
	assert.Equal(t, []string{"OOK:a", "OOK:b"}, rec.messages())

	mu.Lock()
	assert.Equal(t, []string{"a", "b"}, received)
	mu.Unlock()
}

func TestFabricListenerCloseDisconnects(t *testing.T) {
	f := NewFabric()
	ln, err := f.Listen("tcp://relay:1", ListenConfig{})
	require.NoError(t, err)

	rec := &recorder{}
	_, err = f.Dial(Subscriber, "tcp://relay:1", rec.handle)
	require.NoError(t, err)
	waitFor(t, func() bool { return rec.count(EventConnect) == 1 })

	require.NoError(t, ln.Close())
	waitFor(t, func() bool { return rec.count(EventConnectDelay) == 1 })
	assert.Equal(t, []EventKind{EventConnect, EventDisconnect, EventConnectDelay}, rec.kinds())

	_, err = f.Listen("tcp://relay:1", ListenConfig{})
	require.NoError(t, err)
	waitFor(t, func() bool { return rec.count(EventConnect) == 2 })
}

func TestFabricListenTwice(t *testing.T) {
	f := NewFabric()
	_, err := f.Listen("tcp://relay:1", ListenConfig{})
	require.NoError(t, err)

	_, err = f.Listen("tcp://relay:1", ListenConfig{})
	assert.ErrorIs(t, err, ErrAddressInUse)
}

func TestFabricEmitAndFailSends(t *testing.T) {
	f := NewFabric()
	_, err := f.Listen("tcp://relay:2", ListenConfig{})
	require.NoError(t, err)

	rec := &recorder{}
	s, err := f.Dial(Requester, "tcp://relay:2", rec.handle)
	require.NoError(t, err)

	assert.Equal(t, 1, f.Sockets("tcp://relay:2"))
	assert.Equal(t, 1, f.Emit("tcp://relay:2", Event{Kind: EventConnectRetry}))
	assert.Equal(t, 0, f.Emit("tcp://other:2", Event{Kind: EventConnectRetry}))
	waitFor(t, func() bool { return rec.count(EventConnectRetry) == 1 })

	boom := errors.New("boom")
	f.FailSends("tcp://relay:2", boom)
	assert.ErrorIs(t, s.Send([]byte("x")), boom)
	f.FailSends("tcp://relay:2", nil)
	assert.NoError(t, s.Send([]byte("x")))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	waitFor(t, func() bool { return rec.count(EventClose) == 1 })
	assert.Equal(t, 0, f.Sockets("tcp://relay:2"))
	assert.ErrorIs(t, s.Send([]byte("x")), ErrClosed)
}

func TestFabricPeerCloseReconnects(t *testing.T) {
	f := NewFabric()

	var mu sync.Mutex
	var first Peer
	_, err := f.Listen("tcp://relay:1", ListenConfig{
		OnConnect: func(p Peer) {
			mu.Lock()
			if first == nil {
				first = p
			}
			mu.Unlock()
		},
	})
	require.NoError(t, err)

	rec := &recorder{}
	_, err = f.Dial(Subscriber, "tcp://relay:1", rec.handle)
	require.NoError(t, err)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return first != nil
	})

	mu.Lock()
	require.NoError(t, first.Close())
	assert.ErrorIs(t, first.Send([]byte("x")), ErrClosed)
	mu.Unlock()

	waitFor(t, func() bool { return rec.count(EventConnect) == 2 })
	assert.Equal(t, []EventKind{EventConnect, EventDisconnect, EventConnectRetry, EventConnect}, rec.kinds())
}
