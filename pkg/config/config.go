// Package config loads tdrs YAML configuration files.
//
// A file configures a transport client, a relay, or both:
//
//	identity: 6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f
//	links:
//	  - publisherAddress: tcp://10.0.0.1:12300
//	    receiverAddress: tcp://10.0.0.1:12301
//	discovery:
//	  enabled: true
//	  group: TDRS
//	transport:
//	  connectRetryBeforeFailover: 16
//	  sendTimeout: 5s
//	codec:
//	  compression: gzip
//	  encryption: chacha20
//	  key: secret
//	socket:
//	  writeTimeout: 5s
//	  keepAlive:
//	    interval: 10s
//	    maxMissed: 3
//	relay:
//	  id: relay-a
//	  publisherAddress: tcp://0.0.0.0:12300
//	  receiverAddress: tcp://0.0.0.0:12301
//	  advertise: true
//	log:
//	  level: debug
//	  capture: /var/log/tdrs/client.tlog
//	metrics:
//	  address: :9100
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tdrs-protocol/tdrs-go/pkg/codec"
	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
	"github.com/tdrs-protocol/tdrs-go/pkg/tdrs"
)

// Default relay endpoints.
const (
	DefaultRelayPublisherAddress = "tcp://0.0.0.0:12300"
	DefaultRelayReceiverAddress  = "tcp://0.0.0.0:12301"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// File is the content of a configuration file.
type File struct {
	// Identity is the transport UUID. Empty generates one per run.
	Identity string `yaml:"identity"`

	// Links are the statically configured relays.
	Links []link.Link `yaml:"links"`

	Discovery Discovery                `yaml:"discovery"`
	Transport Transport                `yaml:"transport"`
	Codec     codec.Config             `yaml:"codec"`
	Backoff   connection.BackoffConfig `yaml:"backoff"`
	Socket    Socket                   `yaml:"socket"`
	Relay     Relay                    `yaml:"relay"`
	Log       Log                      `yaml:"log"`
	Metrics   Metrics                  `yaml:"metrics"`
}

// Discovery configures mDNS browsing and advertising.
type Discovery struct {
	// Enabled starts the discovery daemon inside the transport.
	Enabled bool `yaml:"enabled"`

	// Interface restricts mDNS to one network interface.
	Interface string `yaml:"interface"`

	// Group filters browsed relays and is advertised by relays.
	Group string `yaml:"group"`

	// TTL is the advertised record TTL.
	TTL time.Duration `yaml:"ttl"`
}

// Transport holds the session timings.
type Transport struct {
	ConnectRetryBeforeFailover int           `yaml:"connectRetryBeforeFailover"`
	SendTimeout                time.Duration `yaml:"sendTimeout"`
	SendPollInterval           time.Duration `yaml:"sendPollInterval"`
}

// Socket configures connection liveness for client sockets and relay peers.
type Socket struct {
	// WriteTimeout bounds a single frame write. Negative disables the bound.
	WriteTimeout time.Duration `yaml:"writeTimeout"`

	// KeepAlive configures pings. A negative interval disables them.
	KeepAlive socket.KeepAliveConfig `yaml:"keepAlive"`
}

// Relay configures a relay process.
type Relay struct {
	// ID is the advertised relay identifier.
	ID string `yaml:"id"`

	PublisherAddress string `yaml:"publisherAddress"`
	ReceiverAddress  string `yaml:"receiverAddress"`

	// Advertise announces the relay over mDNS.
	Advertise bool `yaml:"advertise"`
}

// Log configures operational logging and protocol capture.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// Capture is a .tlog file receiving protocol events. Empty disables capture.
	Capture string `yaml:"capture"`
}

// Metrics configures the Prometheus endpoint.
type Metrics struct {
	// Address is the HTTP listen address. Empty disables the endpoint.
	Address string `yaml:"address"`
}

// LoadError describes a configuration file that could not be used.
type LoadError struct {
	// File is the path of the offending file (empty for in-memory data).
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	if e.File == "" {
		return msg
	}
	return e.File + ": " + msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Default returns a File with every default filled in.
func Default() *File {
	return &File{
		Discovery: Discovery{
			Group: discovery.DefaultGroup,
			TTL:   discovery.DefaultTTL,
		},
		Transport: Transport{
			ConnectRetryBeforeFailover: connection.MaxConnectionRetries,
			SendTimeout:                tdrs.DefaultSendTimeout,
			SendPollInterval:           tdrs.DefaultSendPollInterval,
		},
		Codec: codec.Config{
			Compression: codec.CompressionNone,
			Encryption:  codec.EncryptionNone,
		},
		Backoff: connection.DefaultBackoffConfig(),
		Socket: Socket{
			WriteTimeout: socket.DefaultWriteTimeout,
			KeepAlive:    socket.DefaultKeepAliveConfig(),
		},
		Relay: Relay{
			PublisherAddress: DefaultRelayPublisherAddress,
			ReceiverAddress:  DefaultRelayReceiverAddress,
		},
		Log: Log{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// Parse decodes YAML on top of the defaults and validates the result.
// Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	f := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, &LoadError{
			Message: "failed to parse YAML",
			Cause:   err,
		}
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{
			File:    path,
			Message: "failed to read file",
			Cause:   err,
		}
	}

	f, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
			return nil, le
		}
		return nil, &LoadError{File: path, Message: err.Error()}
	}
	return f, nil
}

// Validate checks every section. It also normalizes the codec selectors.
func (f *File) Validate() error {
	if f.Identity != "" {
		if _, err := uuid.Parse(f.Identity); err != nil {
			return &LoadError{Message: "invalid identity", Cause: err}
		}
	}

	for i, l := range f.Links {
		if err := l.Validate(); err != nil {
			return &LoadError{Message: fmt.Sprintf("links[%d]", i), Cause: err}
		}
		for _, addr := range []string{l.PublisherAddress, l.ReceiverAddress} {
			if _, err := socket.ParseAddress(addr); err != nil {
				return &LoadError{Message: fmt.Sprintf("links[%d]", i), Cause: err}
			}
		}
	}

	comp, err := codec.ParseCompression(string(f.Codec.Compression))
	if err != nil {
		return &LoadError{Message: "codec", Cause: err}
	}
	enc, err := codec.ParseEncryption(string(f.Codec.Encryption))
	if err != nil {
		return &LoadError{Message: "codec", Cause: err}
	}
	f.Codec.Compression, f.Codec.Encryption = comp, enc

	if f.Transport.ConnectRetryBeforeFailover < 0 {
		return &LoadError{Message: "transport.connectRetryBeforeFailover must not be negative"}
	}
	if f.Transport.SendTimeout < 0 || f.Transport.SendPollInterval < 0 {
		return &LoadError{Message: "transport timings must not be negative"}
	}

	if f.Socket.KeepAlive.MaxMissed < 0 {
		return &LoadError{Message: "socket.keepAlive.maxMissed must not be negative"}
	}

	if f.Relay.PublisherAddress != "" {
		if _, err := socket.ParseAddress(f.Relay.PublisherAddress); err != nil {
			return &LoadError{Message: "relay.publisherAddress", Cause: err}
		}
	}
	if f.Relay.ReceiverAddress != "" {
		if _, err := socket.ParseAddress(f.Relay.ReceiverAddress); err != nil {
			return &LoadError{Message: "relay.receiverAddress", Cause: err}
		}
	}

	if _, err := f.Log.level(); err != nil {
		return &LoadError{Message: "log.level", Cause: err}
	}
	switch strings.ToLower(f.Log.Format) {
	case "", FormatText, FormatJSON:
	default:
		return &LoadError{Message: fmt.Sprintf("log.format %q (must be text or json)", f.Log.Format)}
	}

	return nil
}

// TransportIdentity returns the configured identity, or a new random one.
func (f *File) TransportIdentity() uuid.UUID {
	if id, err := uuid.Parse(f.Identity); err == nil {
		return id
	}
	return uuid.New()
}

// BrowserConfig returns the mDNS browser settings.
func (f *File) BrowserConfig() discovery.BrowserConfig {
	cfg := discovery.DefaultBrowserConfig()
	cfg.Interface = f.Discovery.Interface
	if f.Discovery.Group != "" {
		cfg.Group = f.Discovery.Group
	}
	return cfg
}

// AdvertiserConfig returns the mDNS advertiser settings.
func (f *File) AdvertiserConfig() discovery.AdvertiserConfig {
	cfg := discovery.DefaultAdvertiserConfig()
	cfg.Interface = f.Discovery.Interface
	if f.Discovery.TTL > 0 {
		cfg.TTL = f.Discovery.TTL
	}
	return cfg
}
