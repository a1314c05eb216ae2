// Package connection provides per-channel lifecycle tracking for TDRS links.
//
// Every link has two channels: the publisher channel (subscriber socket on the
// relay's broadcast endpoint) and the receiver channel (request socket on the
// relay's receiver endpoint). Each channel moves through:
//
//	DISCONNECTED -> CONNECTING -> CONNECTED
//
// and falls back to DISCONNECTED on delay, close, error or loss events.
//
// # Retry Counting
//
// Every retry attempt reported by a socket increments the channel's retry
// count. When the count exceeds the failover threshold it is reset and the
// caller is told to fail over to another link. A successful connect resets the
// count.
//
// # Backoff
//
// Sockets space their dial attempts with exponential backoff plus jitter:
//
//	actual_delay = base_delay + random(0, base_delay * jitter)
//
// The base delay starts at 100ms, doubles per attempt and is capped at 30s.
// It resets to the initial value after a successful connect.
package connection
