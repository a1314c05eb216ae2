// Package socket provides the broadcast/request socket fabric TDRS runs on.
//
// A relay exposes two endpoints. Its publisher endpoint broadcasts every
// frame to all attached Subscriber sockets. Its receiver endpoint accepts
// frames from Requester sockets and answers each with a reply frame.
//
// Client sockets never block their creator. Dial returns at once and the
// socket connects, retries and reconnects in the background, reporting its
// lifecycle to the handler as ordered events:
//
//	connect        connection established
//	connect_delay  dial failed, a retry is scheduled
//	connect_retry  a scheduled retry is starting
//	disconnect     an established connection was lost
//	close          the socket was closed by its owner
//	close_error    closing the socket failed
//	monitor_error  a fault that does not change the lifecycle state
//	message        a frame arrived
//
// # Addresses
//
//	tcp://host:port        4-byte big-endian length-prefixed frames
//	ws://host:port/path    one binary websocket message per frame
//
// # In-Memory Fabric
//
// Fabric implements both Dialer and Binder inside the process. It is used by
// tests and by examples that run a relay and its clients side by side.
package socket
