// Package link describes candidate relay peers.
package link

import (
	"errors"
	"fmt"
)

// ErrInvalidLink indicates a link without both addresses.
var ErrInvalidLink = errors.New("invalid link")

// Link identifies one candidate relay peer by its two endpoints.
// Links are values; they are replaced, never mutated.
type Link struct {
	// ID is the optional peer identifier (set for discovered peers).
	ID string `yaml:"id,omitempty" json:"id,omitempty"`

	// PublisherAddress is the relay's broadcast endpoint (e.g. "tcp://10.0.0.1:19791").
	PublisherAddress string `yaml:"publisherAddress" json:"publisherAddress"`

	// ReceiverAddress is the relay's request endpoint (e.g. "tcp://10.0.0.1:19790").
	ReceiverAddress string `yaml:"receiverAddress" json:"receiverAddress"`
}

// Equal compares by ID when either side has one, otherwise by the address pair.
func (l Link) Equal(other Link) bool {
	if l.ID != "" || other.ID != "" {
		return l.ID == other.ID
	}
	return l.ReceiverAddress == other.ReceiverAddress &&
		l.PublisherAddress == other.PublisherAddress
}

// Validate checks that both addresses are set.
func (l Link) Validate() error {
	if l.PublisherAddress == "" {
		return fmt.Errorf("%w: missing publisher address", ErrInvalidLink)
	}
	if l.ReceiverAddress == "" {
		return fmt.Errorf("%w: missing receiver address", ErrInvalidLink)
	}
	return nil
}

func (l Link) String() string {
	if l.ID != "" {
		return fmt.Sprintf("%s(pub=%s rec=%s)", l.ID, l.PublisherAddress, l.ReceiverAddress)
	}
	return fmt.Sprintf("pub=%s rec=%s", l.PublisherAddress, l.ReceiverAddress)
}

// Set is an ordered list of links without duplicates under Equal.
type Set []Link

// NewSet builds a set from links, dropping later duplicates.
func NewSet(links ...Link) Set {
	var s Set
	for _, l := range links {
		s.Add(l)
	}
	return s
}

// Index returns the position of a link equal to l, or -1.
func (s Set) Index(l Link) int {
	for i, existing := range s {
		if existing.Equal(l) {
			return i
		}
	}
	return -1
}

// Contains reports whether a link equal to l is present.
func (s Set) Contains(l Link) bool {
	return s.Index(l) >= 0
}

// Add appends l unless an equal link exists. Returns false for duplicates.
func (s *Set) Add(l Link) bool {
	if s.Contains(l) {
		return false
	}
	*s = append(*s, l)
	return true
}

// RemoveByID removes the link with the given ID.
func (s *Set) RemoveByID(id string) (Link, bool) {
	if id == "" {
		return Link{}, false
	}
	for i, existing := range *s {
		if existing.ID == id {
			*s = append((*s)[:i:i], (*s)[i+1:]...)
			return existing, true
		}
	}
	return Link{}, false
}

// Clone returns a copy that shares no backing array with s.
func (s Set) Clone() Set {
	if s == nil {
		return nil
	}
	out := make(Set, len(s))
	copy(out, s)
	return out
}
