package tdrs

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/relay"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

const waitTimeout = 3 * time.Second

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	require.Eventually(t, cond, waitTimeout, 5*time.Millisecond, msg)
}

func relayLink(host string) link.Link {
	return link.Link{
		PublisherAddress: "tcp://" + host + ":12300",
		ReceiverAddress:  "tcp://" + host + ":12301",
	}
}

func startRelay(t *testing.T, f *socket.Fabric, l link.Link) *relay.Server {
	t.Helper()
	srv, err := relay.NewServer(relay.Config{
		PublisherAddress: l.PublisherAddress,
		ReceiverAddress:  l.ReceiverAddress,
		Binder:           f,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv
}

// testTransport builds a transport on f with fast gate timings.
func testTransport(t *testing.T, f *socket.Fabric, cfg Config) *Transport {
	t.Helper()
	if cfg.Dialer == nil {
		cfg.Dialer = f
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(1))
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 2 * time.Second
	}
	if cfg.SendPollInterval == 0 {
		cfg.SendPollInterval = 5 * time.Millisecond
	}
	tr, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func connectReady(t *testing.T, tr *Transport) {
	t.Helper()
	require.NoError(t, tr.Connect())
	waitFor(t, tr.Ready, "transport never became ready")
}

// recorder collects application events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func record(tr *Transport) *recorder {
	r := &recorder{}
	tr.OnEvent(r.handle)
	return r
}

func (r *recorder) handle(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) of(tp EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == tp {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) messages() []string {
	var out []string
	for _, ev := range r.of(EventMessage) {
		out = append(out, string(ev.Payload))
	}
	return out
}

func newMetrics() (*prometheus.Registry, *metrics.Transport) {
	reg := prometheus.NewRegistry()
	return reg, metrics.NewTransport(reg)
}

// counterIs reports whether the unlabeled counter name has value want.
func counterIs(reg *prometheus.Registry, name, help, want string) func() bool {
	expected := "# HELP " + name + " " + help + "\n# TYPE " + name + " counter\n" + name + " " + want + "\n"
	return func() bool {
		return gatherEquals(reg, expected, name)
	}
}

// gatherEquals compares the named metric family with its text exposition.
func gatherEquals(reg *prometheus.Registry, expected, name string) bool {
	return testutil.GatherAndCompare(reg, strings.NewReader(expected), name) == nil
}

// scriptedBrowser is a discovery.Browser fed by the test.
type scriptedBrowser struct {
	events chan discovery.Event
	once   sync.Once
}

func newScriptedBrowser() *scriptedBrowser {
	return &scriptedBrowser{events: make(chan discovery.Event, 8)}
}

func (b *scriptedBrowser) Browse(context.Context) (<-chan discovery.Event, error) {
	return b.events, nil
}

func (b *scriptedBrowser) Stop() {
	b.once.Do(func() { close(b.events) })
}

func relayEvent(tp discovery.EventType, id, host string) discovery.Event {
	return discovery.Event{
		Type: tp,
		Service: discovery.RelayService{
			InstanceName: "TDRS-" + id,
			Host:         host,
			Info:         discovery.RelayInfo{ID: id},
			Text: discovery.TXTRecordMap{
				discovery.TXTKeyID:                id,
				discovery.TXTKeyPublisherProtocol: "tcp",
				discovery.TXTKeyPublisherPort:     "12300",
				discovery.TXTKeyReceiverProtocol:  "tcp",
				discovery.TXTKeyReceiverPort:      "12301",
			},
		},
	}
}
