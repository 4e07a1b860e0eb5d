package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/p2p"

	"github.com/rollkit/poe/config"
)

// loadNodeKey reads the node key from the node home. The key signs the
// transactions sent by the tx commands.
func loadNodeKey(cmd *cobra.Command) (*p2p.NodeKey, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(v.GetString(config.FlagHome), config.DefaultConfigDir, config.DefaultKeyName)
	key, err := p2p.LoadNodeKey(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load node key (did you run init?): %w", err)
	}
	return key, nil
}

// NewKeysCmd returns the command inspecting the node key.
func NewKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Inspect the node key",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the account address and public key of the node key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := loadNodeKey(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "address: %s\npubkey:  %X\n", key.PubKey().Address(), key.PubKey().Bytes())
			return nil
		},
	})
	return cmd
}
