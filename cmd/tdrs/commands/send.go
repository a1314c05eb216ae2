package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tdrs-protocol/tdrs-go/pkg/metrics"
	"github.com/tdrs-protocol/tdrs-go/pkg/tdrs"
)

// Delivery outcomes reported by send --wait.
const (
	outcomeConfirmed   = "confirmed"
	outcomeUndelivered = "undelivered"
)

var errNoLinks = errors.New("no relay configured: use --link, --discovery or a config file")

func newTransport(rt *runtime) (*tdrs.Transport, error) {
	f := rt.file
	if len(f.Links) == 0 && !f.Discovery.Enabled {
		return nil, errNoLinks
	}
	return tdrs.New(f.TransportConfig(rt.logger, rt.plog, metrics.NewTransport(rt.registry)))
}

func newSendCommand(o *options) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "send [message...]",
		Short: "Send one message and exit",
		Long: `Send one message through a relay and print its hash.

The message is the arguments joined by spaces, or standard input when no
argument is given. With --wait the command also waits until the relay's
echo confirms delivery or the relay rejects the packet.`,
		Example: `  tdrs send --link tcp://10.0.0.1:12300,tcp://10.0.0.1:12301 hello
  echo hello | tdrs send --discovery --wait 5s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := readPayload(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

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

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// With discovery only, the first ENTER connects.
			if len(rt.file.Links) > 0 {
				if err := tr.Connect(); err != nil {
					return err
				}
			}

			hash, err := tr.Send(ctx, payload)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)

			if wait <= 0 {
				return nil
			}
			outcome, err := awaitOutcome(ctx, tr, hash, wait)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), outcome)
			if outcome == outcomeUndelivered {
				return fmt.Errorf("packet %s was not delivered", hash)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 0, "Wait up to this long for the delivery outcome")
	return cmd
}

func readPayload(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) > 0 {
		return []byte(strings.Join(args, " ")), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	data = []byte(strings.TrimRight(string(data), "\r\n"))
	if len(data) == 0 {
		return nil, errors.New("empty message")
	}
	return data, nil
}

// awaitOutcome polls the delivery cache until hash is confirmed or rejected.
func awaitOutcome(ctx context.Context, tr *tdrs.Transport, hash string, wait time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if slices.Contains(tr.Undelivered(), hash) {
			return outcomeUndelivered, nil
		}
		if !tr.Cached(hash) {
			return outcomeConfirmed, nil
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("no delivery outcome for %s: %w", hash, ctx.Err())
		case <-ticker.C:
		}
	}
}
