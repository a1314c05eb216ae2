package tdrs

import (
	"time"

	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/pool"
)

// Protocol capture helpers. All are no-ops without a ProtocolLogger.

func (t *Transport) capture(ev log.Event) {
	if t.plog == nil {
		return
	}
	ev.Timestamp = time.Now()
	ev.ConnectionID = t.cfg.Identity.String()
	t.plog.Log(ev)
}

func (t *Transport) logChannelState(c *pool.Connection, role connection.Role, old, cur connection.State, reason string) {
	if old == cur && reason == "" {
		return
	}
	ch, addr := log.ChannelPublisher, c.Link.PublisherAddress
	if role == connection.RoleReceiver {
		ch, addr = log.ChannelReceiver, c.Link.ReceiverAddress
	}
	t.capture(log.Event{
		Layer:      log.LayerTransport,
		Category:   log.CategoryState,
		Channel:    ch,
		RemoteAddr: addr,
		LinkID:     c.Link.ID,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityChannel,
			OldState: old.String(),
			NewState: cur.String(),
			Reason:   reason,
		},
	})
}

func (t *Transport) logState(entity log.StateEntity, ch log.Channel, linkID, old, cur, reason string) {
	t.capture(log.Event{
		Layer:    log.LayerTransport,
		Category: log.CategoryState,
		Channel:  ch,
		LinkID:   linkID,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: old,
			NewState: cur,
			Reason:   reason,
		},
	})
}

func (t *Transport) logControl(dir log.Direction, ch log.Channel, ctrl *log.ControlMsgEvent) {
	t.capture(log.Event{
		Direction:  dir,
		Layer:      log.LayerTransport,
		Category:   log.CategoryControl,
		Channel:    ch,
		ControlMsg: ctrl,
	})
}

func (t *Transport) logPacket(dir log.Direction, pkt *log.PacketEvent) {
	ch := log.ChannelPublisher
	if dir == log.DirectionOut {
		ch = log.ChannelReceiver
	}
	t.capture(log.Event{
		Direction: dir,
		Layer:     log.LayerTransport,
		Category:  log.CategoryMessage,
		Channel:   ch,
		Packet:    pkt,
	})
}

func (t *Transport) logError(layer log.Layer, msg string, fatal bool, context, linkID string) {
	t.capture(log.Event{
		Layer:    layer,
		Category: log.CategoryError,
		LinkID:   linkID,
		Error: &log.ErrorEventData{
			Layer:   layer,
			Message: msg,
			Fatal:   fatal,
			Context: context,
		},
	})
}
