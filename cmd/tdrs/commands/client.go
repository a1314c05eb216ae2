package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tdrs-protocol/tdrs-go/cmd/tdrs/interactive"
)

func newClientCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "client",
		Short: "Start an interactive client",
		Long: `Start an interactive client. Every line typed is sent as a message,
received messages and peer events are printed as they arrive. Lines
starting with '/' are commands; type /help for the list.`,
		Example: `  tdrs client --link tcp://10.0.0.1:12300,tcp://10.0.0.1:12301
  tdrs client --discovery --compression gzip --encryption chacha20 --key secret`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := o.load(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			tr, err := newTransport(rt)
			if err != nil {
				return err
			}
			defer tr.Close()

			prompt, err := interactive.New(tr)
			if err != nil {
				return err
			}
			fmt.Fprintf(prompt.Stdout(), "identity %s\n", tr.Identity())

			if len(rt.file.Links) > 0 {
				if err := tr.Connect(); err != nil {
					fmt.Fprintf(prompt.Stdout(), "connect failed: %v\n", err)
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			g, gctx := errgroup.WithContext(ctx)
			rt.serveMetrics(gctx, g)
			g.Go(func() error {
				prompt.Run(gctx, cancel)
				return nil
			})
			return g.Wait()
		},
	}
}
