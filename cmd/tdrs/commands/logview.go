package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdrs-protocol/tdrs-go/pkg/log"
)

func newLogCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Inspect protocol capture files",
	}
	cmd.AddCommand(newLogViewCommand())
	return cmd
}

func newLogViewCommand() *cobra.Command {
	var (
		layer     string
		direction string
		category  string
		channel   string
		connID    string
		linkID    string
		since     string
		until     string
	)

	cmd := &cobra.Command{
		Use:   "view <file.tlog>",
		Short: "Print a capture file in human-readable form",
		Example: `  tdrs log view client.tlog
  tdrs log view --layer transport --category control client.tlog
  tdrs log view --channel receiver --since 2026-01-28T10:00:00Z relay.tlog`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter log.Filter
			if layer != "" {
				l, err := parseLayer(layer)
				if err != nil {
					return err
				}
				filter.Layer = &l
			}
			if direction != "" {
				d, err := parseDirection(direction)
				if err != nil {
					return err
				}
				filter.Direction = &d
			}
			if category != "" {
				c, err := parseCategory(category)
				if err != nil {
					return err
				}
				filter.Category = &c
			}
			if channel != "" {
				ch, err := parseChannel(channel)
				if err != nil {
					return err
				}
				filter.Channel = &ch
			}
			if since != "" {
				ts, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since: %w", err)
				}
				filter.TimeStart = &ts
			}
			if until != "" {
				ts, err := time.Parse(time.RFC3339, until)
				if err != nil {
					return fmt.Errorf("invalid --until: %w", err)
				}
				filter.TimeEnd = &ts
			}
			filter.ConnectionID = connID
			filter.LinkID = linkID

			return runView(args[0], filter, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&layer, "layer", "", "Filter by layer: socket, codec, transport, relay")
	flags.StringVar(&direction, "direction", "", "Filter by direction: in, out")
	flags.StringVar(&category, "category", "", "Filter by category: message, control, state, error")
	flags.StringVar(&channel, "channel", "", "Filter by channel: publisher, receiver")
	flags.StringVar(&connID, "conn-id", "", "Filter by connection ID")
	flags.StringVar(&linkID, "link-id", "", "Filter by link ID")
	flags.StringVar(&since, "since", "", "Only events at or after this RFC 3339 time")
	flags.StringVar(&until, "until", "", "Only events before this RFC 3339 time")
	return cmd
}

// runView prints every event of path that matches filter.
func runView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	sessions := 0
	for {
		event, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if reader.Sessions() != sessions {
			sessions = reader.Sessions()
			formatSession(output, reader.Session())
		}
		formatEvent(output, event)
	}
}

// formatSession writes the header line of a capture session.
func formatSession(w io.Writer, h *log.SessionHeader) {
	fmt.Fprintf(w, "=== session started %s", h.Started.UTC().Format(time.RFC3339))
	if h.Host != "" {
		fmt.Fprintf(w, " on %s", h.Host)
	}
	if h.PID != 0 {
		fmt.Fprintf(w, " (pid %d)", h.PID)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w)
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// timestamp [conn:id] DIRECTION LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	connID := shortenConnID(event.ConnectionID)
	dir := event.Direction.String()

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Packet != nil:
		typeLabel = "Packet"
	case event.StateChange != nil:
		typeLabel = "State"
	case event.ControlMsg != nil:
		typeLabel = event.ControlMsg.Type.String()
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	layerStr := event.Layer.String()
	if event.Category == log.CategoryControl {
		layerStr = "CTRL"
	}

	fmt.Fprintf(w, "%s [conn:%s] %-3s %s %s", ts, connID, dir, layerStr, typeLabel)
	if event.Channel != log.ChannelNone {
		fmt.Fprintf(w, " (%s)", strings.ToLower(event.Channel.String()))
	}
	fmt.Fprintln(w)

	if event.RemoteAddr != "" {
		fmt.Fprintf(w, "  Remote: %s\n", event.RemoteAddr)
	}
	if event.LinkID != "" {
		fmt.Fprintf(w, "  Link: %s\n", event.LinkID)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Packet != nil:
		formatPacketDetails(w, event.Packet)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.ControlMsg != nil:
		formatControlDetails(w, event.ControlMsg)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenConnID returns the first 8 characters of the connection ID.
func shortenConnID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatPacketDetails(w io.Writer, pkt *log.PacketEvent) {
	fmt.Fprintf(w, "  Hash: %s\n", pkt.Hash)
	if pkt.Status != "" {
		fmt.Fprintf(w, "  Status: %s\n", pkt.Status)
	}
	if pkt.Size > 0 {
		fmt.Fprintf(w, "  Size: %d bytes\n", pkt.Size)
	}
	if pkt.Echo {
		fmt.Fprintln(w, "  Confirmed by echo")
	}
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatControlDetails(w io.Writer, ctrl *log.ControlMsgEvent) {
	if ctrl.Hash != "" {
		fmt.Fprintf(w, "  Hash: %s\n", ctrl.Hash)
	}
	if ctrl.PeerID != "" {
		fmt.Fprintf(w, "  Peer: %s\n", ctrl.PeerID)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Fatal {
		fmt.Fprintln(w, "  Fatal: true")
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

func parseLayer(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "socket":
		return log.LayerSocket, nil
	case "codec":
		return log.LayerCodec, nil
	case "transport":
		return log.LayerTransport, nil
	case "relay":
		return log.LayerRelay, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be socket, codec, transport, or relay)", s)
	}
}

func parseDirection(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

func parseCategory(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "control":
		return log.CategoryControl, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, control, state, or error)", s)
	}
}

func parseChannel(s string) (log.Channel, error) {
	switch strings.ToLower(s) {
	case "publisher", "pub":
		return log.ChannelPublisher, nil
	case "receiver", "rec":
		return log.ChannelReceiver, nil
	default:
		return 0, fmt.Errorf("invalid channel: %s (must be publisher or receiver)", s)
	}
}
