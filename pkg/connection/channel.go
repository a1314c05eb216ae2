package connection

// MaxConnectionRetries is the default failover threshold. It is large enough
// that failover effectively only happens on operator request.
const MaxConnectionRetries = 1024

// State represents a channel's connection state.
type State uint8

const (
	// StateDisconnected indicates no live socket connection.
	StateDisconnected State = iota

	// StateConnecting indicates a socket was created and is dialing.
	StateConnecting

	// StateConnected indicates the socket is connected.
	StateConnected
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Role identifies which of a link's two channels is meant.
type Role uint8

const (
	// RolePublisher is the broadcast channel (subscriber socket).
	RolePublisher Role = iota

	// RoleReceiver is the request channel (request socket).
	RoleReceiver
)

// String returns the role name.
func (r Role) String() string {
	switch r {
	case RolePublisher:
		return "publisher"
	case RoleReceiver:
		return "receiver"
	default:
		return "unknown"
	}
}

// Channel tracks the lifecycle of one channel of a link.
//
// Channel is not safe for concurrent use; the owner serializes access.
type Channel struct {
	state      State
	retryCount int
}

// State returns the current state.
func (c *Channel) State() State {
	return c.state
}

// Connected reports whether the channel is connected.
func (c *Channel) Connected() bool {
	return c.state == StateConnected
}

// RetryCount returns the number of retries since the last connect.
func (c *Channel) RetryCount() int {
	return c.retryCount
}

// MarkConnecting records that a socket was created for the channel.
func (c *Channel) MarkConnecting() {
	c.state = StateConnecting
}

// MarkConnected records a successful connect and clears the retry count.
func (c *Channel) MarkConnected() {
	c.state = StateConnected
	c.retryCount = 0
}

// MarkDisconnected records a delay, close, error or loss. The retry count is
// left untouched.
func (c *Channel) MarkDisconnected() {
	c.state = StateDisconnected
}

// Retry records a retry attempt. It returns true when the retry count
// exceeded threshold, in which case the count is reset and the caller should
// fail over. A threshold <= 0 means MaxConnectionRetries.
func (c *Channel) Retry(threshold int) bool {
	if threshold <= 0 {
		threshold = MaxConnectionRetries
	}
	c.state = StateDisconnected
	c.retryCount++
	if c.retryCount > threshold {
		c.retryCount = 0
		return true
	}
	return false
}

// Reset returns the channel to its initial state.
func (c *Channel) Reset() {
	c.state = StateDisconnected
	c.retryCount = 0
}
