package discovery

import (
	"context"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Browser watches the network for relays.
type Browser interface {
	// Browse reports relays entering and leaving until ctx is done or
	// Stop is called. The channel is closed when browsing ends.
	Browse(ctx context.Context) (<-chan Event, error)

	// Stop ends all browse operations.
	Stop()
}

// MDNSBrowser implements Browser using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	return &MDNSBrowser{config: config}
}

// Browse starts watching for relays. Services are aggregated by instance
// name: addresses seen on several interfaces form one relay, which exits
// once its last address is gone.
func (b *MDNSBrowser) Browse(ctx context.Context) (<-chan Event, error) {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.mu.Unlock()

	out := make(chan Event)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)
	agg := newAggregator(groupOrDefault(b.config.Group))

	go func() {
		defer close(out)
		defer func() {
			b.mu.Lock()
			b.running = false
			b.mu.Unlock()
		}()

		for {
			var ev *Event
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				ev = agg.add(entryToService(entry))
			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				ev = agg.remove(entryToService(entry))
			case <-ctx.Done():
				return
			}
			if ev == nil {
				continue
			}
			select {
			case out <- *ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, b.browserOptions()...)
	}()

	return out, nil
}

// Stop ends the running browse operation.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
}

func (b *MDNSBrowser) browserOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if ifaces := interfaces(b.config.Interface); ifaces != nil {
		opts = append(opts, zeroconf.SelectIfaces(ifaces))
	}
	return opts
}

func entryToService(entry *zeroconf.ServiceEntry) RelayService {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	txt := StringsToTXTRecords(entry.Text)
	svc := RelayService{
		InstanceName: entry.Instance,
		Host:         entry.HostName,
		Addresses:    addrs,
		Text:         txt,
	}
	if info, err := DecodeRelayTXT(txt); err == nil {
		svc.Info = *info
	}
	return svc
}

// aggregator merges per-interface service entries into relay presence.
type aggregator struct {
	group    string
	services map[string]*RelayService
}

func newAggregator(group string) *aggregator {
	return &aggregator{group: group, services: make(map[string]*RelayService)}
}

// add records an entry and returns an enter event for a new relay.
func (a *aggregator) add(svc RelayService) *Event {
	if svc.Info.ID == "" || svc.Info.Group != a.group {
		return nil
	}
	if existing, ok := a.services[svc.InstanceName]; ok {
		existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
		return nil
	}
	stored := svc
	a.services[svc.InstanceName] = &stored
	return &Event{Type: EventEnter, Service: stored}
}

// remove drops an entry's addresses and returns an exit event once the
// relay has none left.
func (a *aggregator) remove(svc RelayService) *Event {
	existing, ok := a.services[svc.InstanceName]
	if !ok {
		return nil
	}
	if len(svc.Addresses) > 0 {
		existing.Addresses = removeAddresses(existing.Addresses, svc.Addresses)
	} else {
		existing.Addresses = nil
	}
	if len(existing.Addresses) > 0 {
		return nil
	}
	delete(a.services, svc.InstanceName)
	return &Event{Type: EventExit, Service: *existing}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses filters gone addresses out of the list.
func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}

var _ Browser = (*MDNSBrowser)(nil)
