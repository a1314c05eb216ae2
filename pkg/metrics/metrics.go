// Package metrics exposes Prometheus collectors for transports and relays.
//
// Collectors are created per instance. Passing a nil Registerer yields working
// but unregistered collectors, which is what transports use by default.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tdrs"

// Transport holds the collectors of one transport session.
type Transport struct {
	frames         *prometheus.CounterVec
	packets        *prometheus.CounterVec
	sendFailures   prometheus.Counter
	failovers      prometheus.Counter
	codecErrors    prometheus.Counter
	protocolErrors prometheus.Counter
	peerEvents     *prometheus.CounterVec
	cacheSize      prometheus.Gauge
}

// NewTransport creates transport collectors and registers them with reg
// when reg is not nil.
func NewTransport(reg prometheus.Registerer) *Transport {
	m := &Transport{
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Inbound frames by channel and frame class.",
		}, []string{"channel", "class"}),
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_total",
			Help:      "Outbound packets by delivery outcome.",
		}, []string{"outcome"}),
		sendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_failures_total",
			Help:      "Sends that failed before the relay accepted the frame.",
		}),
		failovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failovers_total",
			Help:      "Automatic reconnects after exceeding the retry threshold.",
		}),
		codecErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "codec_errors_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "protocol_errors_total",
			Help:      "Protocol inconsistencies such as malformed replies.",
		}),
		peerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_events_total",
			Help:      "Peer presence notifications by event.",
		}, []string{"event"}),
		cacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "delivery_cache_packets",
			Help:      "Packets currently held in the delivery cache.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.frames, m.packets, m.sendFailures, m.failovers,
			m.codecErrors, m.protocolErrors, m.peerEvents, m.cacheSize)
	}
	return m
}

// Packet outcomes.
const (
	OutcomeSent        = "sent"
	OutcomeConfirmed   = "confirmed"
	OutcomeUndelivered = "undelivered"
)

// IncFrame counts an inbound frame.
func (m *Transport) IncFrame(channel, class string) {
	m.frames.WithLabelValues(channel, class).Inc()
}

// IncPacket counts a packet outcome.
func (m *Transport) IncPacket(outcome string) {
	m.packets.WithLabelValues(outcome).Inc()
}

// IncSendFailure counts a failed send.
func (m *Transport) IncSendFailure() {
	m.sendFailures.Inc()
}

// IncFailover counts an automatic reconnect.
func (m *Transport) IncFailover() {
	m.failovers.Inc()
}

// IncCodecError counts a dropped undecodable frame.
func (m *Transport) IncCodecError() {
	m.codecErrors.Inc()
}

// IncProtocolError counts a protocol inconsistency.
func (m *Transport) IncProtocolError() {
	m.protocolErrors.Inc()
}

// IncPeerEvent counts a peer notification.
func (m *Transport) IncPeerEvent(event string) {
	m.peerEvents.WithLabelValues(event).Inc()
}

// SetCacheSize records the delivery cache size.
func (m *Transport) SetCacheSize(n int) {
	m.cacheSize.Set(float64(n))
}

// Relay holds the collectors of one relay server.
type Relay struct {
	requests    *prometheus.CounterVec
	broadcasts  prometheus.Counter
	subscribers prometheus.Gauge
	requesters  prometheus.Gauge
}

// NewRelay creates relay collectors and registers them with reg when reg is
// not nil.
func NewRelay(reg prometheus.Registerer) *Relay {
	m := &Relay{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requests_total",
			Help:      "Request frames by reply status.",
		}, []string{"status"}),
		broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "broadcasts_total",
			Help:      "Frames broadcast to subscribers.",
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "subscribers",
			Help:      "Attached subscriber connections.",
		}),
		requesters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "requesters",
			Help:      "Attached requester connections.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.requests, m.broadcasts, m.subscribers, m.requesters)
	}
	return m
}

// IncRequest counts a request by reply status.
func (m *Relay) IncRequest(status string) {
	m.requests.WithLabelValues(status).Inc()
}

// IncBroadcast counts a broadcast frame.
func (m *Relay) IncBroadcast() {
	m.broadcasts.Inc()
}

// SetSubscribers records the subscriber count.
func (m *Relay) SetSubscribers(n int) {
	m.subscribers.Set(float64(n))
}

// SetRequesters records the requester count.
func (m *Relay) SetRequesters(n int) {
	m.requesters.Set(float64(n))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
