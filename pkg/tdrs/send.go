package tdrs

import (
	"context"
	"fmt"

	"github.com/tdrs-protocol/tdrs-go/pkg/delivery"
	"github.com/tdrs-protocol/tdrs-go/pkg/log"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
)

// Send encodes payload and transmits it over the active connection. It
// waits up to SendTimeout for a connection with both channels up. The
// returned hash identifies the packet in the delivery cache; confirmation
// arrives asynchronously by echo. An empty payload fails with
// ErrEmptyPayload without waiting.
func (t *Transport) Send(ctx context.Context, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", ErrEmptyPayload
	}
	if err := t.waitReady(ctx); err != nil {
		return "", err
	}

	data, err := t.codec.Encode(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCodec, err)
	}
	hash := delivery.Hash(data)

	// The lock spans the write and the status update so the echo is never
	// observed while the packet is still sending. The socket bounds the
	// write with its write timeout.
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return "", ErrClosed
	}
	c := t.pool.Active()
	if c == nil || !c.Ready() {
		return "", fmt.Errorf("%w: connection lost before write", ErrNoActiveConnection)
	}

	t.cache.Put(hash, delivery.Packet{Payload: data, Status: delivery.StatusSending})
	if err := c.Receiver.Socket.Send(data); err != nil {
		t.cache.Remove(hash)
		t.metrics.IncSendFailure()
		t.metrics.SetCacheSize(t.cache.Len())
		t.logError(log.LayerTransport, err.Error(), false, "send", c.Link.ID)
		return "", fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	if err := t.cache.SetStatus(hash, delivery.StatusSent); err != nil {
		return "", fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	t.metrics.IncPacket(metrics.OutcomeSent)
	t.metrics.SetCacheSize(t.cache.Len())
	t.logPacket(log.DirectionOut, &log.PacketEvent{Hash: hash, Status: delivery.StatusSent.String(), Size: len(data)})
	t.logger.Debug("packet sent", "hash", hash, "size", len(data))
	return hash, nil
}

// Ready reports whether an active connection has both channels connected.
func (t *Transport) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.pool.Active()
	return c != nil && c.Ready()
}

// waitReady polls for a ready connection every SendPollInterval until
// SendTimeout elapses.
func (t *Transport) waitReady(ctx context.Context) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	if t.Ready() {
		return nil
	}

	timeout := t.cfg.Clock.Timer(t.cfg.SendTimeout)
	defer timeout.Stop()
	ticker := t.cfg.Clock.Ticker(t.cfg.SendPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if t.Ready() {
				return nil
			}
		case <-timeout.C:
			return fmt.Errorf("%w: none ready after %s", ErrNoActiveConnection, t.cfg.SendTimeout)
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrNoActiveConnection, ctx.Err())
		case <-t.done:
			return ErrClosed
		}
	}
}
