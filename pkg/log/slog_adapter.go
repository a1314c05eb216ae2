package log

import (
	"context"
	"log/slog"
)

// SlogAdapter mirrors capture events to an slog.Logger. Errors are logged
// at warn level, fatal errors at error level, everything else at debug.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a SlogAdapter writing to logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event.
func (a *SlogAdapter) Log(event Event) {
	level := slog.LevelDebug
	if event.Error != nil {
		level = slog.LevelWarn
		if event.Error.Fatal {
			level = slog.LevelError
		}
	}
	ctx := context.Background()
	if !a.logger.Enabled(ctx, level) {
		return
	}

	attrs := []slog.Attr{
		slog.String("conn", event.ConnectionID),
		slog.String("dir", event.Direction.String()),
		slog.String("layer", event.Layer.String()),
	}
	if event.Channel != ChannelNone {
		attrs = append(attrs, slog.String("channel", event.Channel.String()))
	}
	if event.LinkID != "" {
		attrs = append(attrs, slog.String("link", event.LinkID))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	msg := "capture"
	switch {
	case event.Frame != nil:
		msg = "frame"
		attrs = append(attrs, slog.Int("size", event.Frame.Size))
	case event.Packet != nil:
		msg = "packet"
		attrs = append(attrs,
			slog.String("hash", event.Packet.Hash),
			slog.String("status", event.Packet.Status),
		)
		if event.Packet.Echo {
			attrs = append(attrs, slog.Bool("echo", true))
		}
	case event.StateChange != nil:
		msg = "state"
		sc := event.StateChange
		attrs = append(attrs,
			slog.String("entity", sc.Entity.String()),
			slog.String("from", sc.OldState),
			slog.String("to", sc.NewState),
		)
		if sc.Reason != "" {
			attrs = append(attrs, slog.String("reason", sc.Reason))
		}
	case event.ControlMsg != nil:
		msg = "control " + event.ControlMsg.Type.String()
		if event.ControlMsg.Hash != "" {
			attrs = append(attrs, slog.String("hash", event.ControlMsg.Hash))
		}
		if event.ControlMsg.PeerID != "" {
			attrs = append(attrs, slog.String("peer", event.ControlMsg.PeerID))
		}
	case event.Error != nil:
		msg = event.Error.Message
		attrs = append(attrs, slog.String("source", event.Error.Layer.String()))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("context", event.Error.Context))
		}
		if event.Error.Fatal {
			attrs = append(attrs, slog.Bool("fatal", true))
		}
	}

	a.logger.LogAttrs(ctx, level, msg, attrs...)
}

var _ Logger = (*SlogAdapter)(nil)
