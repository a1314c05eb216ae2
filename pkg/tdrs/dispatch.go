package tdrs

import (
	"strings"

	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/control"
	"github.com/tdrs-protocol/tdrs-go/pkg/delivery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/pool"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
)

// Frame sources for metrics.
const (
	sourcePublisher = "publisher"
	sourceReceiver  = "receiver"
	sourceDiscovery = "discovery"
)

// handlePublisherMessage classifies a broadcast frame. Control frames are
// plaintext and never reach the codec.
func (t *Transport) handlePublisherMessage(c *pool.Connection, _ connection.Role, ev socket.Event) []Event {
	frame := ev.Data
	kind := control.Classify(frame)
	t.metrics.IncFrame(sourcePublisher, strings.ToLower(kind.String()))

	switch kind {
	case control.KindTerminate:
		t.logControl(log.DirectionIn, log.ChannelPublisher, &log.ControlMsgEvent{Type: log.ControlMsgTerminate})
		t.logger.Info("relay terminating", "link", c.Link.String())
		return []Event{{Type: EventTerminate}}
	case control.KindPeer:
		return t.handlePeerLocked(string(frame))
	default:
		return t.handleDataLocked(frame)
	}
}

// handleDataLocked suppresses the echo of our own packets and decodes
// everything else.
func (t *Transport) handleDataLocked(frame []byte) []Event {
	hash := delivery.Hash(frame)

	if pkt, ok := t.cache.Get(hash); ok {
		if pkt.Status != delivery.StatusSent {
			t.protocolErrorLocked("echo of packet in unexpected state",
				"hash", hash, "status", pkt.Status.String())
			return nil
		}
		t.cache.Remove(hash)
		t.metrics.IncPacket(metrics.OutcomeConfirmed)
		t.metrics.SetCacheSize(t.cache.Len())
		t.logPacket(log.DirectionIn, &log.PacketEvent{Hash: hash, Size: len(frame), Echo: true})
		t.logger.Debug("packet confirmed by echo", "hash", hash)
		return nil
	}

	payload, err := t.codec.Decode(frame)
	if err != nil {
		t.metrics.IncCodecError()
		t.logError(log.LayerCodec, err.Error(), false, "decode", "")
		t.logger.Warn("dropping undecodable frame", "hash", hash, "error", err)
		return nil
	}
	return []Event{{Type: EventMessage, Payload: payload}}
}

// handleReceiverMessage processes a relay reply. A rejection marks the
// packet undelivered; it is not resent.
func (t *Transport) handleReceiverMessage(_ *pool.Connection, _ connection.Role, ev socket.Event) []Event {
	reply, err := control.ParseReply(ev.Data)
	if err != nil {
		t.metrics.IncFrame(sourceReceiver, "invalid")
		t.protocolErrorLocked("malformed relay reply", "frame", string(ev.Data), "error", err)
		return nil
	}

	if reply.Accepted() {
		t.metrics.IncFrame(sourceReceiver, "accepted")
		t.logControl(log.DirectionIn, log.ChannelReceiver, &log.ControlMsgEvent{Type: log.ControlMsgAccepted, Hash: reply.Hash})
		t.logger.Debug("relay accepted packet", "hash", reply.Hash)
		return nil
	}

	t.metrics.IncFrame(sourceReceiver, "rejected")
	t.logControl(log.DirectionIn, log.ChannelReceiver, &log.ControlMsgEvent{Type: log.ControlMsgRejected, Hash: reply.Hash})
	if err := t.cache.SetStatus(reply.Hash, delivery.StatusUndelivered); err != nil {
		t.protocolErrorLocked("rejection of unknown packet", "hash", reply.Hash)
		return nil
	}
	t.metrics.IncPacket(metrics.OutcomeUndelivered)
	t.logPacket(log.DirectionIn, &log.PacketEvent{Hash: reply.Hash, Status: delivery.StatusUndelivered.String()})
	t.logger.Warn("packet undelivered", "hash", reply.Hash)
	return nil
}

// handleDiscoveryLine feeds a discovery daemon line into the peer path.
func (t *Transport) handleDiscoveryLine(line string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	kind := control.Classify([]byte(line))
	t.metrics.IncFrame(sourceDiscovery, strings.ToLower(kind.String()))

	var out []Event
	if kind == control.KindPeer {
		out = t.handlePeerLocked(line)
	} else {
		t.logger.Debug("ignoring discovery line", "line", line)
	}
	t.mu.Unlock()

	t.emit(out)
}

// handlePeerLocked applies a peer presence notification to the link
// configuration and the pool.
func (t *Transport) handlePeerLocked(frame string) []Event {
	msg := control.ParsePeer(frame)
	if msg == nil {
		t.logger.Warn("malformed peer frame", "frame", frame)
		return nil
	}
	t.metrics.IncPeerEvent(msg.Event)

	l := link.Link{
		ID:               msg.ID,
		PublisherAddress: msg.PublisherAddress(),
		ReceiverAddress:  msg.ReceiverAddress(),
	}

	switch msg.Event {
	case control.PeerEnter:
		t.logControl(log.DirectionIn, log.ChannelNone, &log.ControlMsgEvent{Type: log.ControlMsgPeerEnter, PeerID: msg.ID})
		return t.peerEnterLocked(l)
	case control.PeerExit:
		t.logControl(log.DirectionIn, log.ChannelNone, &log.ControlMsgEvent{Type: log.ControlMsgPeerExit, PeerID: msg.ID})
		return t.peerExitLocked(l)
	default:
		t.logger.Debug("ignoring peer event", "event", msg.Event, "peer", msg.ID)
		return nil
	}
}

func (t *Transport) peerEnterLocked(l link.Link) []Event {
	if t.links.Add(l) {
		t.logger.Info("peer entered", "link", l.String())
	}
	t.pool.Reconcile(t.links)

	if t.cfg.Discovery && t.pool.Active() == nil {
		if err := t.connectLocked(); err != nil {
			t.logger.Warn("connect after peer enter failed", "error", err)
		}
	}
	return []Event{{Type: EventPeerEntered, Link: l}}
}

func (t *Transport) peerExitLocked(l link.Link) []Event {
	active := t.pool.Active()
	wasActive := active != nil && active.Link.Equal(l)

	if removed, ok := t.links.RemoveByID(l.ID); ok {
		l = removed
		t.logger.Info("peer exited", "link", l.String())
	}
	if _, err := t.pool.Evict(t.links, true); err != nil {
		t.logger.Debug("releasing exited peer", "error", err)
	}

	if wasActive && t.pool.Active() == nil {
		t.logState(log.StateEntityLink, log.ChannelNone, l.ID, "ACTIVE", "REMOVED", "peer exit")
		if t.cfg.Discovery && len(t.links) > 0 {
			if err := t.connectLocked(); err != nil {
				t.logger.Warn("connect after peer exit failed", "error", err)
			}
		}
	}
	return []Event{{Type: EventPeerExited, Link: l}}
}

// protocolErrorLocked reports a protocol inconsistency loudly without
// stopping the session.
func (t *Transport) protocolErrorLocked(msg string, args ...any) {
	t.metrics.IncProtocolError()
	t.logError(log.LayerTransport, msg, true, "dispatch", "")
	t.logger.Error(msg, append(args, "fatal", true)...)
}
