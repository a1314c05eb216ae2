package discovery

import (
	"errors"
	"net"
	"time"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type of a relay.
	ServiceType = "_tdrs._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultGroup is the group joined when none is configured.
	DefaultGroup = "TDRS"

	// DefaultTTL is the record TTL used when none is configured.
	DefaultTTL = 120 * time.Second

	// MaxInstanceNameLen is the maximum length of a DNS-SD instance name.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	TXTKeyID                = "id"
	TXTKeyGroup             = "grp"
	TXTKeyPublisherProtocol = "X-PUB-PTCL"
	TXTKeyPublisherPort     = "X-PUB-PORT"
	TXTKeyReceiverProtocol  = "X-REC-PTCL"
	TXTKeyReceiverPort      = "X-REC-PORT"
)

// Errors.
var (
	ErrMissingID      = errors.New("discovery: missing relay id")
	ErrInvalidID      = errors.New("discovery: invalid relay id")
	ErrInvalidPort    = errors.New("discovery: invalid port")
	ErrAlreadyRunning = errors.New("discovery: already running")
	ErrNotAdvertising = errors.New("discovery: not advertising")
)

// RelayInfo describes a relay to advertise.
type RelayInfo struct {
	// ID identifies the relay. It becomes the peer id in control lines.
	ID string

	// Group restricts discovery to peers of the same group.
	Group string

	PublisherProtocol string
	PublisherPort     uint16

	ReceiverProtocol string
	ReceiverPort     uint16
}

// RelayService is a relay seen on the network.
type RelayService struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Host is the advertised host name.
	Host string

	// Addresses are the IP addresses the relay answered from.
	Addresses []string

	// Info is the decoded TXT record. Ports are zero when absent.
	Info RelayInfo

	// Text keeps the raw TXT values so absent headers can be told apart
	// from zero values.
	Text TXTRecordMap
}

// EventType is the kind of a browse event.
type EventType string

// Browse events.
const (
	EventEnter EventType = "ENTER"
	EventExit  EventType = "EXIT"
)

// Event reports a relay appearing or disappearing.
type Event struct {
	Type    EventType
	Service RelayService
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string `yaml:"interface"`

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration `yaml:"ttl"`
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{TTL: DefaultTTL}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string `yaml:"interface"`

	// Group filters relays by group. Empty means DefaultGroup.
	Group string `yaml:"group"`
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{Group: DefaultGroup}
}

// interfaces resolves an interface name. nil means all interfaces.
func interfaces(name string) []net.Interface {
	if name == "" {
		return nil
	}
	iface, err := net.InterfaceByName(name)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}
