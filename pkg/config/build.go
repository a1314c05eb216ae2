package config

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/relay"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
	"github.com/tdrs-protocol/tdrs-go/pkg/tdrs"
)

func (l Log) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return lvl, nil
}

// NewLogger builds the operational logger writing to w.
func (f *File) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := f.Log.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(f.Log.Format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ProtocolLogger opens the capture sink. At debug level protocol events are
// also mirrored to logger. The returned close function is never nil.
func (f *File) ProtocolLogger(logger *slog.Logger) (log.Logger, func() error, error) {
	sinks := log.NewMultiLogger()
	if f.Log.Capture != "" {
		fl, err := log.NewFileLogger(f.Log.Capture)
		if err != nil {
			return nil, sinks.Close, fmt.Errorf("open capture file: %w", err)
		}
		sinks = log.NewMultiLogger(sinks, fl)
	}
	if lvl, _ := f.Log.level(); lvl <= slog.LevelDebug && logger != nil {
		sinks = log.NewMultiLogger(sinks, log.NewSlogAdapter(logger))
	}

	if sinks.Len() == 0 {
		return nil, sinks.Close, nil
	}
	return sinks, sinks.Close, nil
}

// TransportConfig converts the file into a transport configuration.
func (f *File) TransportConfig(logger *slog.Logger, plog log.Logger, m *metrics.Transport) tdrs.Config {
	cfg := tdrs.Config{
		Links:                      append(f.Links[:0:0], f.Links...),
		Discovery:                  f.Discovery.Enabled,
		ConnectRetryBeforeFailover: f.Transport.ConnectRetryBeforeFailover,
		SendTimeout:                f.Transport.SendTimeout,
		SendPollInterval:           f.Transport.SendPollInterval,
		Codec:                      f.Codec,
		ProtocolLogger:             plog,
		Metrics:                    m,
		Identity:                   f.TransportIdentity(),
		Dialer: &socket.NetDialer{
			Backoff:        f.Backoff,
			WriteTimeout:   f.Socket.WriteTimeout,
			KeepAlive:      f.Socket.KeepAlive,
			ProtocolLogger: plog,
			Logger:         logger,
		},
	}
	if logger != nil {
		cfg.Logger = logger
	}
	if f.Discovery.Enabled {
		cfg.Browser = discovery.NewMDNSBrowser(f.BrowserConfig())
	}
	return cfg
}

// RelayConfig converts the file into a relay configuration.
func (f *File) RelayConfig(logger *slog.Logger, plog log.Logger, m *metrics.Relay) relay.Config {
	return relay.Config{
		PublisherAddress: f.Relay.PublisherAddress,
		ReceiverAddress:  f.Relay.ReceiverAddress,
		WriteTimeout:     f.Socket.WriteTimeout,
		KeepAlive:        f.Socket.KeepAlive,
		Logger:           logger,
		ProtocolLogger:   plog,
		Metrics:          m,
	}
}

// RelayInfo builds the advertised record for a relay bound at the given
// publisher and receiver addresses.
func (f *File) RelayInfo(publisherAddress, receiverAddress string) (*discovery.RelayInfo, error) {
	pubProto, pubPort, err := endpoint(publisherAddress)
	if err != nil {
		return nil, err
	}
	recProto, recPort, err := endpoint(receiverAddress)
	if err != nil {
		return nil, err
	}
	group := f.Discovery.Group
	if group == "" {
		group = discovery.DefaultGroup
	}
	return &discovery.RelayInfo{
		ID:                f.Relay.ID,
		Group:             group,
		PublisherProtocol: pubProto,
		PublisherPort:     pubPort,
		ReceiverProtocol:  recProto,
		ReceiverPort:      recPort,
	}, nil
}

func endpoint(address string) (string, uint16, error) {
	addr, err := socket.ParseAddress(address)
	if err != nil {
		return "", 0, err
	}
	_, portStr, err := net.SplitHostPort(addr.Host)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", socket.ErrInvalidAddress, address)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return "", 0, fmt.Errorf("%w: %q", discovery.ErrInvalidPort, address)
	}
	return addr.Scheme, uint16(port), nil
}
