// Package relay implements the TDRS relay peer.
//
// A relay binds two endpoints. Subscribers attach to the publisher endpoint
// and receive every broadcast frame. Requesters attach to the receiver
// endpoint and push frames, each of which is rebroadcast to all subscribers
// and answered with a reply:
//
//	OOK:<HASH>   frame accepted and broadcast
//	NOK:<HASH>   frame rejected (empty frame, or no subscriber attached)
//
// HASH is the uppercase hex SHA-1 of the request frame, the same identifier
// the sender uses to track the packet. The sender observes its own frame on
// the broadcast channel, which confirms the round trip.
//
// Stop broadcasts TERMINATE before closing the endpoints so subscribers can
// tell an orderly shutdown from a lost connection.
package relay
