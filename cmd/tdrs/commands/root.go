// Package commands implements the tdrs CLI commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tdrs-protocol/tdrs-go/pkg/codec"
	"github.com/tdrs-protocol/tdrs-go/pkg/config"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
)

// Persistent flag names.
const (
	flagConfig      = "config"
	flagMetrics     = "metrics"
	flagLogLevel    = "log-level"
	flagLogFormat   = "log-format"
	flagCapture     = "capture"
	flagLink        = "link"
	flagDiscovery   = "discovery"
	flagGroup       = "group"
	flagInterface   = "interface"
	flagCompression = "compression"
	flagEncryption  = "encryption"
	flagKey         = "key"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath  string
	metricsAddr string
	logLevel    string
	logFormat   string
	capture     string
	links       []string
	discovery   bool
	group       string
	iface       string
	compression string
	encryption  string
	key         string
}

// runtime is the loaded configuration plus the sinks built from it.
type runtime struct {
	file     *config.File
	logger   *slog.Logger
	plog     log.Logger
	registry *prometheus.Registry
	closers  []func() error
}

func (rt *runtime) close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			rt.logger.Warn("close", "error", err)
		}
	}
}

// NewRootCommand builds the tdrs command tree writing to stdout and stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root, _ := newRootCommand(stdout, stderr)
	return root
}

func newRootCommand(stdout, stderr io.Writer) (*cobra.Command, *options) {
	o := &options{}

	root := &cobra.Command{
		Use:   "tdrs",
		Short: "Reliable point-to-point messaging over relays",
		Long: `tdrs runs relays and clients of the TDRS messaging transport.

A client keeps one active link to a relay, sends frames to the relay's
receiver endpoint and confirms delivery by the echo it gets back on the
relay's publisher endpoint. Relays can be configured statically with
--link or found on the local network with --discovery.`,
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&o.configPath, flagConfig, "", "YAML configuration file")
	pf.StringVar(&o.metricsAddr, flagMetrics, "", "Serve Prometheus metrics on this address (e.g. :9100)")
	pf.StringVar(&o.logLevel, flagLogLevel, "info", "Log level: debug, info, warn, error")
	pf.StringVar(&o.logFormat, flagLogFormat, config.FormatText, "Log format: text or json")
	pf.StringVar(&o.capture, flagCapture, "", "Write protocol events to this .tlog file")
	pf.StringArrayVar(&o.links, flagLink, nil, "Relay link as <publisher>,<receiver> (repeatable)")
	pf.BoolVar(&o.discovery, flagDiscovery, false, "Discover relays via mDNS")
	pf.StringVar(&o.group, flagGroup, "", "Discovery group")
	pf.StringVar(&o.iface, flagInterface, "", "Network interface for mDNS")
	pf.StringVar(&o.compression, flagCompression, "", "Compression: none, gzip, deflate")
	pf.StringVar(&o.encryption, flagEncryption, "", "Encryption: none, aes-256-ctr, chacha20")
	pf.StringVar(&o.key, flagKey, "", "Encryption passphrase")

	root.AddCommand(
		newRelayCommand(o),
		newDiscoverCommand(o),
		newClientCommand(o),
		newSendCommand(o),
		newLogCommand(),
	)
	return root, o
}

// load reads the config file and applies the flags that were set.
func (o *options) load(cmd *cobra.Command) (*runtime, error) {
	f := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
		f = loaded
	}
	if err := o.apply(cmd, f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}

	rt := &runtime{
		file:     f,
		logger:   f.NewLogger(cmd.ErrOrStderr()),
		registry: prometheus.NewRegistry(),
	}
	rt.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	plog, closePlog, err := f.ProtocolLogger(rt.logger)
	if err != nil {
		return nil, err
	}
	rt.plog = plog
	rt.closers = append(rt.closers, closePlog)
	return rt, nil
}

// apply overrides file values with explicitly set flags.
func (o *options) apply(cmd *cobra.Command, f *config.File) error {
	flags := cmd.Flags()
	if flags.Changed(flagMetrics) {
		f.Metrics.Address = o.metricsAddr
	}
	if flags.Changed(flagLogLevel) {
		f.Log.Level = o.logLevel
	}
	if flags.Changed(flagLogFormat) {
		f.Log.Format = o.logFormat
	}
	if flags.Changed(flagCapture) {
		f.Log.Capture = o.capture
	}
	if flags.Changed(flagLink) {
		links, err := parseLinks(o.links)
		if err != nil {
			return err
		}
		f.Links = links
	}
	if flags.Changed(flagDiscovery) {
		f.Discovery.Enabled = o.discovery
	}
	if flags.Changed(flagGroup) {
		f.Discovery.Group = o.group
	}
	if flags.Changed(flagInterface) {
		f.Discovery.Interface = o.iface
	}
	if flags.Changed(flagCompression) {
		f.Codec.Compression = codec.Compression(o.compression)
	}
	if flags.Changed(flagEncryption) {
		f.Codec.Encryption = codec.Encryption(o.encryption)
	}
	if flags.Changed(flagKey) {
		f.Codec.Key = o.key
	}
	return nil
}

// parseLinks parses "<publisher>,<receiver>" pairs.
func parseLinks(values []string) ([]link.Link, error) {
	links := make([]link.Link, 0, len(values))
	for _, v := range values {
		pub, rec, ok := strings.Cut(v, ",")
		if !ok {
			return nil, fmt.Errorf("invalid --%s %q: want <publisher>,<receiver>", flagLink, v)
		}
		links = append(links, link.Link{
			PublisherAddress: strings.TrimSpace(pub),
			ReceiverAddress:  strings.TrimSpace(rec),
		})
	}
	return links, nil
}

// serveMetrics runs the metrics endpoint in g until ctx is done.
func (rt *runtime) serveMetrics(ctx context.Context, g *errgroup.Group) {
	addr := rt.file.Metrics.Address
	if addr == "" {
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(rt.registry))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		rt.logger.Info("serving metrics", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics endpoint: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// ignoreCanceled maps context cancellation to a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
