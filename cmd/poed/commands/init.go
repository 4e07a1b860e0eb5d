package commands

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	tmrand "github.com/tendermint/tendermint/libs/rand"
	"github.com/tendermint/tendermint/p2p"
	tmtypes "github.com/tendermint/tendermint/types"

	"github.com/rollkit/poe/config"
	"github.com/rollkit/poe/genesis"
	"github.com/rollkit/poe/types"
)

const (
	flagChainID        = "chain-id"
	flagClaimDeposit   = "claim-deposit"
	flagMaxProofLength = "max-proof-length"
	flagBalance        = "balance"
	flagNodeFunds      = "node-funds"

	defaultNodeFunds uint64 = 1_000_000
)

// NewInitCmd returns the command creating the node key, genesis and config files.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the node home: key, genesis and config",
		Long: `Creates the node key, the genesis document and poed.toml under <home>/config.
Existing files are kept. The node key account is funded in genesis with --node-funds.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := newViper(cmd)
			if err != nil {
				return err
			}
			nc := config.DefaultNodeConfig()
			nc.RootDir = v.GetString(config.FlagHome)

			if err := tmos.EnsureDir(filepath.Join(nc.RootDir, config.DefaultConfigDir), 0o700); err != nil {
				return err
			}

			nodeKey, err := p2p.LoadOrGenNodeKey(nc.KeyFile())
			if err != nil {
				return fmt.Errorf("failed to load or generate node key: %w", err)
			}
			address := nodeKey.PubKey().Address()
			fmt.Fprintf(cmd.OutOrStdout(), "Node key %s, address %s\n", nc.KeyFile(), address)

			if tmos.FileExists(nc.GenesisFile()) {
				fmt.Fprintf(cmd.OutOrStdout(), "Found genesis file %s\n", nc.GenesisFile())
			} else {
				doc, err := genesisFromFlags(cmd, address)
				if err != nil {
					return err
				}
				if err := doc.SaveAs(nc.GenesisFile()); err != nil {
					return fmt.Errorf("failed to write genesis: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated genesis file %s for chain %s\n", nc.GenesisFile(), doc.ChainID)
			}

			if tmos.FileExists(nc.ConfigFile()) {
				fmt.Fprintf(cmd.OutOrStdout(), "Found config file %s\n", nc.ConfigFile())
			} else {
				if err := config.WriteConfigFile(v); err != nil {
					return fmt.Errorf("failed to write config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Generated config file %s\n", nc.ConfigFile())
			}
			return nil
		},
	}

	cmd.Flags().String(flagChainID, "", "chain id (random if empty)")
	cmd.Flags().Uint64(flagClaimDeposit, types.DefaultClaimDeposit, "amount reserved for every claim")
	cmd.Flags().Uint32(flagMaxProofLength, types.DefaultMaxProofLength, "maximum proof length in bytes")
	cmd.Flags().StringSlice(flagBalance, nil, "genesis balance as <hex address>=<amount>, may be repeated")
	cmd.Flags().Uint64(flagNodeFunds, defaultNodeFunds, "genesis balance of the node key account (0 - none)")
	config.AddFlags(cmd)
	return cmd
}

func genesisFromFlags(cmd *cobra.Command, nodeAddress types.AccountID) (*tmtypes.GenesisDoc, error) {
	flags := cmd.Flags()
	chainID, _ := flags.GetString(flagChainID)
	if chainID == "" {
		chainID = "poe-" + tmrand.Str(6)
	}
	deposit, _ := flags.GetUint64(flagClaimDeposit)
	maxProofLen, _ := flags.GetUint32(flagMaxProofLength)
	rawBalances, _ := flags.GetStringSlice(flagBalance)
	nodeFunds, _ := flags.GetUint64(flagNodeFunds)

	appState := genesis.AppState{
		Params: types.Params{ClaimDeposit: deposit, MaxProofLength: maxProofLen},
	}
	if nodeFunds > 0 {
		appState.Balances = append(appState.Balances, genesis.Balance{Address: nodeAddress, Amount: nodeFunds})
	}
	for _, raw := range rawBalances {
		b, err := parseBalance(raw)
		if err != nil {
			return nil, err
		}
		appState.Balances = append(appState.Balances, b)
	}
	return genesis.NewGenesisDoc(chainID, time.Now().UTC(), appState)
}

func parseBalance(s string) (genesis.Balance, error) {
	addr, amount, ok := strings.Cut(s, "=")
	if !ok {
		return genesis.Balance{}, fmt.Errorf("invalid balance %q: expected <address>=<amount>", s)
	}
	id, err := types.ParseAccountID(addr)
	if err != nil {
		return genesis.Balance{}, err
	}
	n, err := strconv.ParseUint(amount, 10, 64)
	if err != nil {
		return genesis.Balance{}, fmt.Errorf("invalid balance amount %q: %w", amount, err)
	}
	return genesis.Balance{Address: id, Amount: n}, nil
}
