// Command tdrs runs relays and clients of the TDRS messaging transport.
//
// Usage:
//
//	tdrs <command> [flags]
//
// Commands:
//
//	relay     Run a relay (optionally advertised via mDNS)
//	discover  Print PEER lines for relays found via mDNS
//	client    Interactive client: type to send, /help for commands
//	send      Send one message and exit
//	log view  Print a protocol capture file
//
// Examples:
//
//	# Run a relay and advertise it on the local network
//	tdrs relay --advertise --id relay-a
//
//	# Chat through a statically configured relay
//	tdrs client --link tcp://10.0.0.1:12300,tcp://10.0.0.1:12301
//
//	# Send through whatever relay discovery finds, wait for the echo
//	echo hello | tdrs send --discovery --wait 5s
//
//	# Inspect a capture written with --capture
//	tdrs log view --category control client.tlog
package main

import (
	"os"

	"github.com/tdrs-protocol/tdrs-go/cmd/tdrs/commands"
)

func main() {
	if err := commands.NewRootCommand(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}
