package commands

import (
	"github.com/spf13/cobra"

	"github.com/rollkit/poe/types"
)

// NewQueryCmd returns the command group reading committed state.
func NewQueryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "query",
		Aliases: []string{"q"},
		Short:   "Query the committed state of the node",
	}
	addClientFlags(cmd)

	claim := &cobra.Command{
		Use:   "claim [proof]",
		Short: "Show the owner of a proof",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, err := proofFromArgs(cmd, args)
			if err != nil {
				return err
			}
			c, err := newRPCClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Claim(cmd.Context(), proof)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	claim.Flags().String(flagFile, "", "query the proof of this file")

	claims := &cobra.Command{
		Use:   "claims [owner]",
		Short: "List the proofs held by an account (the node key account by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := accountFromArgs(cmd, args)
			if err != nil {
				return err
			}
			c, err := newRPCClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.ClaimsByOwner(cmd.Context(), owner)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	account := &cobra.Command{
		Use:   "account [address]",
		Short: "Show balances and nonce of an account (the node key account by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := accountFromArgs(cmd, args)
			if err != nil {
				return err
			}
			c, err := newRPCClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Account(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show the chain tip",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRPCClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	params := &cobra.Command{
		Use:   "params",
		Short: "Show the chain parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRPCClient(cmd)
			if err != nil {
				return err
			}
			res, err := c.Params(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}

	cmd.AddCommand(claim, claims, account, status, params)
	return cmd
}

func accountFromArgs(cmd *cobra.Command, args []string) (types.AccountID, error) {
	if len(args) == 1 {
		return types.ParseAccountID(args[0])
	}
	key, err := loadNodeKey(cmd)
	if err != nil {
		return nil, err
	}
	return key.PubKey().Address(), nil
}
