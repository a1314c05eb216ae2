package discovery

import (
	"context"
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Advertiser publishes a relay on the local network.
type Advertiser interface {
	// Advertise starts advertising the relay, replacing any previous
	// advertisement.
	Advertise(ctx context.Context, info *RelayInfo) error

	// Update replaces the TXT record of the running advertisement.
	Update(info *RelayInfo) error

	// Stop withdraws the advertisement.
	Stop() error
}

// MDNSAdvertiser implements Advertiser using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu     sync.Mutex
	server *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) *MDNSAdvertiser {
	return &MDNSAdvertiser{config: config}
}

// Advertise registers the relay service. The service port is the receiver
// port, or the publisher port when the receiver port is unset.
func (a *MDNSAdvertiser) Advertise(ctx context.Context, info *RelayInfo) error {
	txt, err := EncodeRelayTXT(info)
	if err != nil {
		return err
	}

	port := int(info.ReceiverPort)
	if port == 0 {
		port = int(info.PublisherPort)
	}
	if port == 0 {
		return fmt.Errorf("%w: no endpoint port", ErrInvalidPort)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}

	server, err := zeroconf.Register(
		InstanceName(info),
		ServiceType,
		Domain,
		port,
		TXTRecordsToStrings(txt),
		interfaces(a.config.Interface),
		opts...,
	)
	if err != nil {
		return fmt.Errorf("failed to register relay service: %w", err)
	}

	a.server = server
	return nil
}

// Update replaces the TXT record of the running advertisement.
func (a *MDNSAdvertiser) Update(info *RelayInfo) error {
	txt, err := EncodeRelayTXT(info)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		return ErrNotAdvertising
	}
	a.server.SetText(TXTRecordsToStrings(txt))
	return nil
}

// Stop withdraws the advertisement.
func (a *MDNSAdvertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
	return nil
}

var _ Advertiser = (*MDNSAdvertiser)(nil)
