package tdrs

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdrs-protocol/tdrs-go/pkg/codec"
	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/relay"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

type captured struct {
	events chan log.Event
}

func (c *captured) Log(ev log.Event) {
	select {
	case c.events <- ev:
	default:
	}
}

func TestLoopbackTCP(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	srv, err := relay.NewServer(relay.Config{
		PublisherAddress: "tcp://127.0.0.1:0",
		ReceiverAddress:  "tcp://127.0.0.1:0",
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })

	l := link.Link{
		PublisherAddress: srv.PublisherAddress(),
		ReceiverAddress:  srv.ReceiverAddress(),
	}
	cc := codec.Config{
		Compression: codec.CompressionDeflate,
		Encryption:  codec.EncryptionChaCha20,
		Key:         "loopback",
	}
	dialer := func() socket.Dialer {
		return &socket.NetDialer{Backoff: connection.BackoffConfig{
			Initial:    10 * time.Millisecond,
			Max:        50 * time.Millisecond,
			Multiplier: 2,
		}}
	}

	plog := &captured{events: make(chan log.Event, 256)}
	alice := testTransport(t, nil, Config{Links: []link.Link{l}, Codec: cc, Dialer: dialer(), ProtocolLogger: plog})
	bob := testTransport(t, nil, Config{Links: []link.Link{l}, Codec: cc, Dialer: dialer()})
	bobRec := record(bob)

	connectReady(t, alice)
	connectReady(t, bob)
	waitFor(t, func() bool { return srv.Subscribers() == 2 }, "subscribers not attached")

	payload := []byte("over the wire")
	hash, err := alice.Send(context.Background(), payload)
	require.NoError(t, err)
	assert.Len(t, hash, 40)

	waitFor(t, func() bool { return len(bobRec.messages()) == 1 }, "message not received")
	assert.Equal(t, []string{string(payload)}, bobRec.messages())
	waitFor(t, func() bool { return alice.State().CachedPackets == 0 }, "echo not confirmed")

	var sawPacket bool
	for !sawPacket {
		select {
		case ev := <-plog.events:
			if ev.Packet != nil && ev.Packet.Hash == hash {
				sawPacket = true
				assert.Equal(t, alice.Identity().String(), ev.ConnectionID)
			}
		case <-time.After(time.Second):
			t.Fatal("no packet capture event")
		}
	}
}

// stalledEndpoint accepts TCP connections and never reads from them.
func stalledEndpoint(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})
	return "tcp://" + ln.Addr().String()
}

func TestSendToStalledRelayIsBounded(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping network test in short mode")
	}

	l := link.Link{
		PublisherAddress: stalledEndpoint(t),
		ReceiverAddress:  stalledEndpoint(t),
	}
	tr := testTransport(t, nil, Config{
		Links: []link.Link{l},
		Dialer: &socket.NetDialer{
			Backoff:      connection.BackoffConfig{Initial: 10 * time.Millisecond, Max: 50 * time.Millisecond},
			WriteTimeout: 100 * time.Millisecond,
			KeepAlive:    socket.KeepAliveConfig{Interval: -1},
		},
	})
	connectReady(t, tr)

	result := make(chan error, 1)
	go func() {
		payload := make([]byte, socket.DefaultMaxFrameSize)
		for i := 0; i < 512; i++ {
			if _, err := tr.Send(context.Background(), payload); err != nil {
				result <- err
				return
			}
		}
		result <- nil
	}()

	var sendErr error
	var slowest time.Duration
	for done := false; !done; {
		start := time.Now()
		tr.State()
		slowest = max(slowest, time.Since(start))

		select {
		case sendErr = <-result:
			done = true
		case <-time.After(10 * time.Millisecond):
		}
	}

	require.Error(t, sendErr, "the relay's buffers must fill up")
	assert.ErrorIs(t, sendErr, ErrSendFailed)
	assert.Less(t, slowest, time.Second, "State blocked behind a stalled write")

	t.Run("Reconnects", func(t *testing.T) {
		waitFor(t, func() bool {
			_, err := tr.Send(context.Background(), []byte("after"))
			return err == nil
		}, "request channel never came back")
	})
}
