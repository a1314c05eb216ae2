// Package delivery tracks outbound packets until their delivery resolves.
//
// A packet is keyed by the SHA-1 digest of its wire bytes, rendered as an
// uppercase hex string. The relay answers with the same digest and the echo of
// a packet hashes to the same key, so the digest correlates all three.
//
// Entries never expire. A packet stays addressable until its own echo arrives
// (Remove), the transport rejects the write (Remove) or the relay reports it as
// undelivered (SetStatus).
package delivery
