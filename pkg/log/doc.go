// Package log provides structured protocol capture for TDRS.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (socket, codec, transport core).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/tdrs/client.tlog")
//
//	// Both: use MultiLogger, whose Close closes the file
//	sinks := log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fileLogger)
//	defer sinks.Close()
//
// # Event Types
//
//   - Socket: Raw frame bytes (FrameEvent)
//   - Transport: Packet tracking (PacketEvent), channel state changes (StateChangeEvent)
//   - Control frames (TERMINATE, PEER, OOK, NOK) have ControlMsgEvent
//   - Errors at any layer have ErrorEventData
//
// # File Format
//
// Capture files (.tlog) are CBOR sequences. Each FileLogger appends a session:
// a SessionHeader (text keys, format version, host, pid) followed by Events
// with integer keys. Reader skips headers and exposes the current one.
// "tdrs log view" prints capture files with filtering.
package log
