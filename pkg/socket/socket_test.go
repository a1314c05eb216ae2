package socket

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
)

// recorder collects socket events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	n := 0
	for _, k := range r.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.Kind == EventMessage {
			out = append(out, string(ev.Data))
		}
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 5*time.Millisecond)
}

func fastDialer() *NetDialer {
	return &NetDialer{
		Backoff: connection.BackoffConfig{
			Initial: 5 * time.Millisecond,
			Max:     20 * time.Millisecond,
		},
		DialTimeout: time.Second,
	}
}

func freeTCPAddress(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return "tcp://" + addr
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr error
	}{
		{"tcp://127.0.0.1:12300", Address{Scheme: "tcp", Host: "127.0.0.1:12300"}, nil},
		{"ws://localhost:8080/tdrs", Address{Scheme: "ws", Host: "localhost:8080", Path: "/tdrs"}, nil},
		{"udp://127.0.0.1:1", Address{}, ErrUnsupportedScheme},
		{"tcp://127.0.0.1", Address{}, ErrInvalidAddress},
		{"tcp://127.0.0.1:1/path", Address{}, ErrInvalidAddress},
		{"127.0.0.1:1", Address{}, ErrInvalidAddress},
		{"*://10.0.0.1", Address{}, ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAddress(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestEventKindString(t *testing.T) {
	names := map[EventKind]string{
		EventConnect:      "connect",
		EventConnectDelay: "connect_delay",
		EventConnectRetry: "connect_retry",
		EventDisconnect:   "disconnect",
		EventClose:        "close",
		EventCloseError:   "close_error",
		EventMonitorError: "monitor_error",
		EventMessage:      "message",
		EventKind(99):     "unknown",
	}
	for k, want := range names {
		assert.Equal(t, want, k.String())
	}
	assert.Equal(t, "subscriber", Subscriber.String())
	assert.Equal(t, "requester", Requester.String())
}

func testRequestReply(t *testing.T, address string) {
	binder := &NetBinder{}
	ln, err := binder.Listen(address, ListenConfig{
		OnMessage: func(p Peer, data []byte) {
			p.Send(append([]byte("re:"), data...))
		},
	})
	require.NoError(t, err)
	defer ln.Close()

	rec := &recorder{}
	s, err := fastDialer().Dial(Requester, ln.Address(), rec.handle)
	require.NoError(t, err)

	waitFor(t, func() bool { return rec.count(EventConnect) == 1 })
	require.NoError(t, s.Send([]byte("hello")))
	waitFor(t, func() bool { return len(rec.messages()) == 1 })
	assert.Equal(t, []string{"re:hello"}, rec.messages())

	require.NoError(t, s.Close())
	waitFor(t, func() bool { return rec.count(EventClose) == 1 })
	assert.ErrorIs(t, s.Send([]byte("late")), ErrClosed)

	kinds := rec.kinds()
	assert.Equal(t, EventConnect, kinds[0])
	assert.Equal(t, EventClose, kinds[len(kinds)-1])
}

func TestNetRequestReplyTCP(t *testing.T) {
	testRequestReply(t, "tcp://127.0.0.1:0")
}

func TestNetRequestReplyWebSocket(t *testing.T) {
	testRequestReply(t, "ws://127.0.0.1:0/tdrs")
}

func TestNetSubscriber(t *testing.T) {
	var mu sync.Mutex
	var peers []Peer

	ln, err := (&NetBinder{}).Listen("tcp://127.0.0.1:0", ListenConfig{
		OnConnect: func(p Peer) {
			mu.Lock()
			peers = append(peers, p)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	defer ln.Close()

	rec := &recorder{}
	s, err := fastDialer().Dial(Subscriber, ln.Address(), rec.handle)
	require.NoError(t, err)
	defer s.Close()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(peers) == 1
	})

	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotSupported)

	mu.Lock()
	require.NoError(t, peers[0].Send([]byte("one")))
	require.NoError(t, peers[0].Send([]byte("TERMINATE")))
	mu.Unlock()

	waitFor(t, func() bool { return len(rec.messages()) == 2 })
	assert.Equal(t, []string{"one", "TERMINATE"}, rec.messages())
}

func TestNetRetryAndReconnect(t *testing.T) {
	address := freeTCPAddress(t)

	rec := &recorder{}
	s, err := fastDialer().Dial(Requester, address, rec.handle)
	require.NoError(t, err)
	defer s.Close()

	waitFor(t, func() bool { return rec.count(EventConnectRetry) >= 2 })
	assert.ErrorIs(t, s.Send([]byte("x")), ErrNotConnected)

	kinds := rec.kinds()
	assert.Equal(t, EventConnectDelay, kinds[0])
	assert.Equal(t, EventConnectRetry, kinds[1])

	ln, err := (&NetBinder{}).Listen(address, ListenConfig{})
	require.NoError(t, err)
	waitFor(t, func() bool { return rec.count(EventConnect) == 1 })

	require.NoError(t, ln.Close())
	waitFor(t, func() bool { return rec.count(EventDisconnect) == 1 })

	ln, err = (&NetBinder{}).Listen(address, ListenConfig{})
	require.NoError(t, err)
	defer ln.Close()
	waitFor(t, func() bool { return rec.count(EventConnect) == 2 })
}

func TestNetMonitorErrorOnOversizeFrame(t *testing.T) {
	ln, err := (&NetBinder{}).Listen("tcp://127.0.0.1:0", ListenConfig{
		OnConnect: func(p Peer) {
			p.Send(make([]byte, 64))
		},
	})
	require.NoError(t, err)
	defer ln.Close()

	d := fastDialer()
	d.MaxFrameSize = 16

	rec := &recorder{}
	s, err := d.Dial(Subscriber, ln.Address(), rec.handle)
	require.NoError(t, err)
	defer s.Close()

	waitFor(t, func() bool { return rec.count(EventMonitorError) >= 1 })
	waitFor(t, func() bool { return rec.count(EventDisconnect) >= 1 })

	rec.mu.Lock()
	defer rec.mu.Unlock()
	for _, ev := range rec.events {
		if ev.Kind == EventMonitorError {
			assert.True(t, errors.Is(ev.Err, ErrFrameTooLarge))
		}
	}
}

func TestNetDialInvalidAddress(t *testing.T) {
	_, err := fastDialer().Dial(Requester, "bogus", nil)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCloseFromHandler(t *testing.T) {
	ln, err := (&NetBinder{}).Listen("tcp://127.0.0.1:0", ListenConfig{})
	require.NoError(t, err)
	defer ln.Close()

	rec := &recorder{}
	var s Socket
	var once sync.Once
	ready := make(chan struct{})

	s, err = fastDialer().Dial(Subscriber, ln.Address(), func(ev Event) {
		rec.handle(ev)
		if ev.Kind == EventConnect {
			<-ready
			once.Do(func() { s.Close() })
		}
	})
	require.NoError(t, err)
	close(ready)

	waitFor(t, func() bool { return rec.count(EventClose) == 1 })
}
