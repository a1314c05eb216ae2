package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/tdrs-protocol/tdrs-go/pkg/config"
	"github.com/tdrs-protocol/tdrs-go/pkg/discovery"
	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/relay"
)

func newRelayCommand(o *options) *cobra.Command {
	var (
		id        string
		pubAddr   string
		recAddr   string
		advertise bool
	)

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run a relay",
		Long: `Run a relay that rebroadcasts every accepted request to all subscribers.

The relay answers each request with OOK:<hash> once it has been broadcast,
or NOK:<hash> when no subscriber is attached. With --advertise the relay
announces itself over mDNS so clients started with --discovery find it.`,
		Example: `  tdrs relay --publisher tcp://0.0.0.0:12300 --receiver tcp://0.0.0.0:12301
  tdrs relay --advertise --id relay-a --metrics :9100`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := o.load(cmd)
			if err != nil {
				return err
			}
			defer rt.close()

			f := rt.file
			flags := cmd.Flags()
			if flags.Changed("id") {
				f.Relay.ID = id
			}
			if flags.Changed("publisher") {
				f.Relay.PublisherAddress = pubAddr
			}
			if flags.Changed("receiver") {
				f.Relay.ReceiverAddress = recAddr
			}
			if flags.Changed("advertise") {
				f.Relay.Advertise = advertise
			}
			if f.Relay.ID == "" {
				host, _ := os.Hostname()
				f.Relay.ID = host
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := relay.NewServer(f.RelayConfig(rt.logger, rt.plog, metrics.NewRelay(rt.registry)))
			if err != nil {
				return err
			}
			if err := srv.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "relay %s\n  publisher: %s\n  receiver:  %s\n",
				f.Relay.ID, srv.PublisherAddress(), srv.ReceiverAddress())

			g, gctx := errgroup.WithContext(ctx)
			rt.serveMetrics(gctx, g)

			var adv discovery.Advertiser
			if f.Relay.Advertise {
				adv, err = advertiseRelay(gctx, rt, srv)
				if err != nil {
					return multierr.Combine(err, srv.Stop())
				}
			}

			g.Go(func() error {
				<-gctx.Done()
				return nil
			})
			err = g.Wait()

			if adv != nil {
				err = multierr.Append(err, adv.Stop())
			}
			return multierr.Append(err, srv.Stop())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&id, "id", "", "Relay identifier (default: hostname)")
	flags.StringVar(&pubAddr, "publisher", "", "Publisher endpoint (default: "+config.DefaultRelayPublisherAddress+")")
	flags.StringVar(&recAddr, "receiver", "", "Receiver endpoint (default: "+config.DefaultRelayReceiverAddress+")")
	flags.BoolVar(&advertise, "advertise", false, "Advertise the relay via mDNS")
	return cmd
}

func advertiseRelay(ctx context.Context, rt *runtime, srv *relay.Server) (discovery.Advertiser, error) {
	info, err := rt.file.RelayInfo(srv.PublisherAddress(), srv.ReceiverAddress())
	if err != nil {
		return nil, fmt.Errorf("advertise: %w", err)
	}
	adv := discovery.NewMDNSAdvertiser(rt.file.AdvertiserConfig())
	if err := adv.Advertise(ctx, info); err != nil {
		return nil, fmt.Errorf("advertise: %w", err)
	}
	rt.logger.Info("advertising relay", "instance", discovery.InstanceName(info), "group", info.Group)
	return adv, nil
}
