// Package discovery implements mDNS/DNS-SD presence for TDRS relays.
//
// A relay advertises one instance of the _tdrs._tcp service. The instance
// TXT record carries the relay id and the protocol and port of both relay
// endpoints:
//
//	id=<relay id>
//	grp=<group>
//	X-PUB-PTCL=tcp  X-PUB-PORT=5555
//	X-REC-PTCL=tcp  X-REC-PORT=5556
//
// Both endpoints share the advertised host address.
//
// A Daemon browses the same service type and reports each relay that
// appears or disappears as a peer control line:
//
//	PEER:ENTER:<id>:<pub proto>:<host>:<pub port>:<rec proto>:<host>:<rec port>
//
// Missing TXT headers are rendered as "*". The transport consumes these
// lines on the same path as broadcast frames.
package discovery
