// Package tdrs implements the reliable messaging transport.
//
// A Transport keeps one logical duplex channel to one relay at a time. Each
// relay is described by a link with two endpoints: the publisher endpoint,
// which broadcasts every accepted frame to all subscribers, and the
// receiver endpoint, which accepts request frames and answers OOK or NOK.
//
// Outbound payloads are compressed, then encrypted, hashed (SHA-1, upper
// case hex) and cached as "sending" before they are written to the
// receiver endpoint. Once written they are "sent". When the relay
// rebroadcasts the frame, the transport recognizes its own echo by hash,
// removes the packet and emits nothing. A NOK reply marks the packet
// undelivered. Undelivered packets are not resent.
//
// Inbound broadcast frames are classified before decoding:
//
//	TERMINATE          the relay is shutting down
//	PEER:<event>:...   a relay entered or left (see package control)
//	anything else      data, decrypted then decompressed
//
// Socket lifecycle events drive a small state machine per channel. After
// more than ConnectRetryBeforeFailover connect retries of one channel the
// transport reconnects to a randomly chosen link.
package tdrs
