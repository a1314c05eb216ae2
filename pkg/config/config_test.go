package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tdrs-protocol/tdrs-go/pkg/codec"
	"github.com/tdrs-protocol/tdrs-go/pkg/connection"
	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/link"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/socket"
	"github.com/tdrs-protocol/tdrs-go/pkg/tdrs"
)

const fullYAML = `
identity: 6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f
links:
  - publisherAddress: tcp://10.0.0.1:12300
    receiverAddress: tcp://10.0.0.1:12301
  - id: relay-b
    publisherAddress: ws://10.0.0.2:8080/pub
    receiverAddress: ws://10.0.0.2:8080/rec
discovery:
  enabled: true
  interface: eth0
  group: LAB
  ttl: 30s
transport:
  connectRetryBeforeFailover: 16
  sendTimeout: 2s
  sendPollInterval: 250ms
codec:
  compression: GZIP
  encryption: chacha20
  key: secret
backoff:
  initial: 50ms
  max: 5s
socket:
  writeTimeout: 2s
  keepAlive:
    interval: 1s
relay:
  id: relay-a
  publisherAddress: tcp://0.0.0.0:5555
  receiverAddress: tcp://0.0.0.0:5556
  advertise: true
log:
  level: debug
  format: json
metrics:
  address: ":9100"
`

func TestParseFull(t *testing.T) {
	f, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	assert.Equal(t, "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f", f.TransportIdentity().String())
	require.Len(t, f.Links, 2)
	assert.Equal(t, "relay-b", f.Links[1].ID)
	assert.Equal(t, "ws://10.0.0.2:8080/pub", f.Links[1].PublisherAddress)

	assert.True(t, f.Discovery.Enabled)
	assert.Equal(t, 30*time.Second, f.Discovery.TTL)
	assert.Equal(t, 16, f.Transport.ConnectRetryBeforeFailover)
	assert.Equal(t, 2*time.Second, f.Transport.SendTimeout)
	assert.Equal(t, 250*time.Millisecond, f.Transport.SendPollInterval)

	assert.Equal(t, codec.CompressionGzip, f.Codec.Compression, "selectors are normalized")
	assert.Equal(t, codec.EncryptionChaCha20, f.Codec.Encryption)
	assert.Equal(t, "secret", f.Codec.Key)

	assert.Equal(t, 50*time.Millisecond, f.Backoff.Initial)
	assert.Equal(t, 5*time.Second, f.Backoff.Max)
	assert.Equal(t, connection.BackoffMultiplier, f.Backoff.Multiplier, "unset keys keep defaults")

	assert.Equal(t, 2*time.Second, f.Socket.WriteTimeout)
	assert.Equal(t, time.Second, f.Socket.KeepAlive.Interval)
	assert.Equal(t, socket.DefaultMaxMissed, f.Socket.KeepAlive.MaxMissed, "unset keys keep defaults")

	assert.True(t, f.Relay.Advertise)
	assert.Equal(t, ":9100", f.Metrics.Address)
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	f, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), f)
	assert.Equal(t, connection.MaxConnectionRetries, f.Transport.ConnectRetryBeforeFailover)
	assert.Equal(t, tdrs.DefaultSendTimeout, f.Transport.SendTimeout)
	assert.Equal(t, DefaultRelayPublisherAddress, f.Relay.PublisherAddress)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		cause error
		msg   string
	}{
		{name: "UnknownKey", yaml: "linkz: []", msg: "failed to parse YAML"},
		{name: "BadYAML", yaml: "links: [", msg: "failed to parse YAML"},
		{name: "BadIdentity", yaml: "identity: nope", msg: "invalid identity"},
		{name: "LinkMissingAddress", yaml: "links:\n  - publisherAddress: tcp://a:1\n", msg: "links[0]", cause: link.ErrInvalidLink},
		{name: "LinkBadScheme", yaml: "links:\n  - publisherAddress: udp://a:1\n    receiverAddress: tcp://a:2\n", msg: "links[0]", cause: socket.ErrUnsupportedScheme},
		{name: "BadCompression", yaml: "codec:\n  compression: lz4\n", msg: "codec", cause: codec.ErrUnsupportedAlgorithm},
		{name: "BadEncryption", yaml: "codec:\n  encryption: rot13\n", msg: "codec", cause: codec.ErrUnsupportedAlgorithm},
		{name: "NegativeRetries", yaml: "transport:\n  connectRetryBeforeFailover: -1\n", msg: "connectRetryBeforeFailover"},
		{name: "NegativeTimeout", yaml: "transport:\n  sendTimeout: -1s\n", msg: "timings"},
		{name: "NegativeMaxMissed", yaml: "socket:\n  keepAlive:\n    maxMissed: -1\n", msg: "socket.keepAlive.maxMissed"},
		{name: "BadRelayAddress", yaml: "relay:\n  receiverAddress: tcp://nohostport\n", msg: "relay.receiverAddress", cause: socket.ErrInvalidAddress},
		{name: "BadLevel", yaml: "log:\n  level: loud\n", msg: "log.level"},
		{name: "BadFormat", yaml: "log:\n  format: xml\n", msg: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)

			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Contains(t, le.Message, tt.msg)
			if tt.cause != nil {
				assert.ErrorIs(t, err, tt.cause)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "ok.yaml")
		require.NoError(t, os.WriteFile(path, []byte(fullYAML), 0o600))
		f, err := Load(path)
		require.NoError(t, err)
		assert.Len(t, f.Links, 2)
	})

	t.Run("Missing", func(t *testing.T) {
		path := filepath.Join(dir, "missing.yaml")
		_, err := Load(path)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, path, le.File)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("InvalidCarriesPath", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("codec:\n  compression: lz4\n"), 0o600))
		_, err := Load(path)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, path, le.File)
		assert.True(t, strings.HasPrefix(err.Error(), path+": codec"), err.Error())
	})
}

func TestTransportConfig(t *testing.T) {
	f, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	cfg := f.TransportConfig(logger, nil, nil)

	assert.Equal(t, f.Links, cfg.Links)
	f.Links[0].ID = "mutated"
	assert.Empty(t, cfg.Links[0].ID, "links are copied")

	assert.True(t, cfg.Discovery)
	assert.IsType(t, &discovery.MDNSBrowser{}, cfg.Browser)
	assert.Equal(t, 16, cfg.ConnectRetryBeforeFailover)
	assert.Equal(t, f.Codec, cfg.Codec)
	assert.Equal(t, "6f1c2d3e-4b5a-4c7d-8e9f-0a1b2c3d4e5f", cfg.Identity.String())

	nd, ok := cfg.Dialer.(*socket.NetDialer)
	require.True(t, ok)
	assert.Equal(t, 50*time.Millisecond, nd.Backoff.Initial)
	assert.Equal(t, 2*time.Second, nd.WriteTimeout)
	assert.Equal(t, time.Second, nd.KeepAlive.Interval)
	assert.Same(t, logger, nd.Logger)
}

func TestRelayConfigCarriesSocketSettings(t *testing.T) {
	f, err := Parse([]byte(fullYAML))
	require.NoError(t, err)

	cfg := f.RelayConfig(nil, nil, nil)
	assert.Equal(t, "tcp://0.0.0.0:5555", cfg.PublisherAddress)
	assert.Equal(t, 2*time.Second, cfg.WriteTimeout)
	assert.Equal(t, f.Socket.KeepAlive, cfg.KeepAlive)
}

func TestTransportConfigWithoutDiscovery(t *testing.T) {
	f := Default()
	cfg := f.TransportConfig(nil, nil, nil)
	assert.False(t, cfg.Discovery)
	assert.Nil(t, cfg.Browser)
	assert.Nil(t, cfg.Logger)
}

func TestRelayInfo(t *testing.T) {
	f := Default()
	f.Relay.ID = "relay-a"

	info, err := f.RelayInfo("tcp://0.0.0.0:5555", "ws://0.0.0.0:8080/rec")
	require.NoError(t, err)
	assert.Equal(t, &discovery.RelayInfo{
		ID:                "relay-a",
		Group:             discovery.DefaultGroup,
		PublisherProtocol: "tcp",
		PublisherPort:     5555,
		ReceiverProtocol:  "ws",
		ReceiverPort:      8080,
	}, info)

	_, err = f.RelayInfo("tcp://0.0.0.0:0", "tcp://0.0.0.0:5556")
	assert.ErrorIs(t, err, discovery.ErrInvalidPort)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	f := Default()
	f.Log.Format = FormatJSON
	f.Log.Level = "warn"

	logger := f.NewLogger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}

func TestProtocolLogger(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		f := Default()
		plog, closeFn, err := f.ProtocolLogger(slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		assert.Nil(t, plog)
		assert.NoError(t, closeFn())
	})

	t.Run("CaptureFile", func(t *testing.T) {
		f := Default()
		f.Log.Capture = filepath.Join(t.TempDir(), "session.tlog")
		plog, closeFn, err := f.ProtocolLogger(nil)
		require.NoError(t, err)
		require.IsType(t, &log.MultiLogger{}, plog)
		assert.Equal(t, 1, plog.(*log.MultiLogger).Len())

		plog.Log(log.Event{ConnectionID: "abc", Category: log.CategoryState})
		require.NoError(t, closeFn())

		r, err := log.NewReader(f.Log.Capture)
		require.NoError(t, err)
		defer r.Close()
		ev, err := r.Next()
		require.NoError(t, err)
		assert.Equal(t, "abc", ev.ConnectionID)
	})

	t.Run("DebugMirrorsToSlog", func(t *testing.T) {
		f := Default()
		f.Log.Level = "debug"
		f.Log.Capture = filepath.Join(t.TempDir(), "session.tlog")
		plog, closeFn, err := f.ProtocolLogger(slog.New(slog.DiscardHandler))
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &log.MultiLogger{}, plog)
		assert.Equal(t, 2, plog.(*log.MultiLogger).Len())
	})

	t.Run("BadCapturePath", func(t *testing.T) {
		f := Default()
		f.Log.Capture = filepath.Join(t.TempDir(), "missing", "dir", "x.tlog")
		_, closeFn, err := f.ProtocolLogger(nil)
		assert.Error(t, err)
		assert.NotNil(t, closeFn)
	})
}
