package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
)

func newDiscoverCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Print relays appearing and disappearing on the local network",
		Long: `Browse mDNS for relays and print one PEER line per change:

  PEER:ENTER:<id>:<pub-proto>:<pub-host>:<pub-port>:<rec-proto>:<rec-host>:<rec-port>
  PEER:EXIT:<id>:...

These are the same lines a client with --discovery feeds into its transport.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := o.load(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			daemon := discovery.NewDaemon(discovery.DaemonConfig{
				Browser: discovery.NewMDNSBrowser(rt.file.BrowserConfig()),
				Logger:  rt.logger,
			})
			defer daemon.Stop()

			out := cmd.OutOrStdout()
			return ignoreCanceled(daemon.Run(ctx, func(line string) {
				fmt.Fprintln(out, line)
			}))
		},
	}
}
