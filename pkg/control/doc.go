// Package control implements the plaintext control frames that share the
// broadcast channel with data frames, and the relay reply frames.
//
// Broadcast channel frames are classified in this order:
//
//	TERMINATE                      terminate signal (any casing)
//	PEER:<event>:<id>:<pubProto>:<pubAddr>:<pubPort>:<subProto>:<subAddr>:<subPort>
//	anything else                  data frame (codec encoded)
//
// Control frames are never compressed or encrypted.
//
// Reply frames arrive on the request channel:
//
//	OOK:<HASH>    relay accepted and rebroadcast the packet
//	NOK:<HASH>    relay rejected the packet
//
// The status occupies the first three bytes, the hash starts at offset four.
package control
