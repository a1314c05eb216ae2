package delivery

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
)

// HashLength is the length of a hash identifier (160 bits as hex).
const HashLength = sha1.Size * 2

// ErrUnknownPacket indicates no packet is cached under a hash.
var ErrUnknownPacket = errors.New("unknown packet")

// Status is the delivery status of a packet.
type Status uint8

const (
	// StatusSending means the packet is cached but the write has not completed.
	StatusSending Status = iota

	// StatusSent means the transport accepted the write.
	StatusSent

	// StatusUndelivered means the relay rejected the packet.
	StatusUndelivered
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSending:
		return "sending"
	case StatusSent:
		return "sent"
	case StatusUndelivered:
		return "undelivered"
	default:
		return "unknown"
	}
}

// Packet is one tracked outbound message.
type Packet struct {
	// Payload is the wire-encoded payload (after the codec pipeline).
	Payload []byte

	// Status is the current delivery status.
	Status Status
}

// Hash returns the uppercase hex SHA-1 digest of data.
func Hash(data []byte) string {
	sum := sha1.Sum(data)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// Cache is a concurrent-safe packet store keyed by hash.
type Cache struct {
	mu      sync.Mutex
	packets map[string]Packet
}

// NewCache creates an empty cache.
func NewCache() *Cache {
	return &Cache{
		packets: make(map[string]Packet),
	}
}

// Put stores or replaces the packet under hash.
func (c *Cache) Put(hash string, packet Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets[hash] = packet
}

// Get returns the packet stored under hash.
func (c *Cache) Get(hash string) (Packet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.packets[hash]
	return p, ok
}

// SetStatus updates the status of a cached packet.
func (c *Cache) SetStatus(hash string, status Status) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.packets[hash]
	if !ok {
		return ErrUnknownPacket
	}
	p.Status = status
	c.packets[hash] = p
	return nil
}

// Remove deletes the packet under hash and returns the number of removed entries.
func (c *Cache) Remove(hash string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.packets[hash]; !ok {
		return 0
	}
	delete(c.packets, hash)
	return 1
}

// Len returns the number of cached packets.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

// WithStatus returns the hashes of all packets in the given status.
func (c *Cache) WithStatus(status Status) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hashes []string
	for h, p := range c.packets {
		if p.Status == status {
			hashes = append(hashes, h)
		}
	}
	return hashes
}
