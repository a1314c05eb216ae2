package discovery

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/tdrs-protocol/tdrs-go/pkg/control"
)

// PeerMessage converts a browse event into a peer control message. Both
// endpoints use the relay's first IPv4 address, falling back to its host
// name. Absent TXT headers stay empty and format as the wildcard.
func PeerMessage(ev Event) control.PeerMessage {
	host := peerHost(ev.Service)
	txt := ev.Service.Text
	return control.PeerMessage{
		Event: string(ev.Type),
		ID:    ev.Service.Info.ID,
		Publisher: control.Endpoint{
			Protocol: txt[TXTKeyPublisherProtocol],
			Host:     host,
			Port:     portText(txt[TXTKeyPublisherPort]),
		},
		Receiver: control.Endpoint{
			Protocol: txt[TXTKeyReceiverProtocol],
			Host:     host,
			Port:     portText(txt[TXTKeyReceiverPort]),
		},
	}
}

// PeerLine renders a browse event as a PEER control line.
func PeerLine(ev Event) string {
	return control.FormatPeer(PeerMessage(ev))
}

func peerHost(svc RelayService) string {
	for _, addr := range svc.Addresses {
		if ip := net.ParseIP(addr); ip != nil && ip.To4() != nil {
			return ip.String()
		}
	}
	return strings.TrimSuffix(svc.Host, ".")
}

func portText(s string) string {
	if _, err := strconv.ParseUint(s, 10, 16); err != nil {
		return ""
	}
	return s
}

// DaemonConfig configures a Daemon.
type DaemonConfig struct {
	// Browser finds relays. Default: an MDNSBrowser with DefaultBrowserConfig.
	Browser Browser

	// SelfID is the id of a relay advertised by this process. Its own
	// advertisement is not reported.
	SelfID string

	// Logger receives operational messages. Default: discard.
	Logger *slog.Logger
}

// Daemon reports relay presence as PEER control lines.
type Daemon struct {
	browser Browser
	selfID  string
	logger  *slog.Logger
}

// NewDaemon creates a discovery daemon.
func NewDaemon(cfg DaemonConfig) *Daemon {
	d := &Daemon{
		browser: cfg.Browser,
		selfID:  cfg.SelfID,
		logger:  cfg.Logger,
	}
	if d.browser == nil {
		d.browser = NewMDNSBrowser(DefaultBrowserConfig())
	}
	if d.logger == nil {
		d.logger = slog.New(slog.DiscardHandler)
	}
	return d
}

// Run browses until ctx is done, passing one line per ENTER or EXIT to emit.
// emit is called from a single goroutine.
func (d *Daemon) Run(ctx context.Context, emit func(line string)) error {
	events, err := d.browser.Browse(ctx)
	if err != nil {
		return err
	}
	d.logger.Debug("discovery started", "service", ServiceType)

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				d.logger.Debug("discovery stopped")
				return ctx.Err()
			}
			if ev.Service.Info.ID == "" || ev.Service.Info.ID == d.selfID {
				continue
			}
			line := PeerLine(ev)
			d.logger.Debug("peer event", "type", ev.Type, "id", ev.Service.Info.ID, "line", line)
			emit(line)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Stop ends browsing. Run returns once the browser closes its channel.
func (d *Daemon) Stop() {
	d.browser.Stop()
}
