package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/node"
	"github.com/rollkit/poe/rpc"
	"github.com/rollkit/poe/rpc/client"
)

// NewStartCmd returns the command running the node and its RPC server.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "start",
		Aliases: []string{"node", "run"},
		Short:   "Run the poe node",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			nc, err := loadNodeConfig(cmd)
			if err != nil {
				return err
			}
			logger, err := newLogger(nc, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			genDoc, _, err := genesis.LoadGenesisDoc(nc.GenesisFile())
			if err != nil {
				return fmt.Errorf("failed to load genesis (did you run init?): %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := node.NewNode(ctx, nc, genDoc, node.DefaultMetricsProvider(nc.Instrumentation), logger)
			if err != nil {
				return fmt.Errorf("failed to create new poe node: %w", err)
			}
			if err := n.Start(); err != nil {
				return fmt.Errorf("failed to start node: %w", err)
			}

			server := rpc.NewServer(client.NewClient(n), nc.RPC, logger.With("module", "rpc-server"))
			if err := server.Start(); err != nil {
				return multierr.Append(err, n.Stop())
			}
			logger.Info("Started node", "chain_id", genDoc.ChainID, "version", config.Version)

			var runErr error
			select {
			case <-ctx.Done():
				logger.Info("caught signal, stopping node")
			case runErr = <-n.Errors():
				logger.Error("block production failed", "err", runErr)
			}

			if err := server.Stop(); err != nil {
				logger.Error("unable to stop the RPC server", "error", err)
			}
			return multierr.Append(runErr, n.Stop())
		},
	}

	config.AddFlags(cmd)
	return cmd
}
