package commands

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rollkit/poe/state"
	"github.com/rollkit/poe/types"
)

// NewTxCmd returns the command group signing transactions with the node key.
func NewTxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tx",
		Short: "Sign transactions with the node key and wait for their inclusion",
	}
	addClientFlags(cmd)

	createClaim := &cobra.Command{
		Use:   "create-claim [proof]",
		Short: "Claim a proof, reserving the claim deposit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, err := proofFromArgs(cmd, args)
			if err != nil {
				return err
			}
			return broadcast(cmd, types.MsgCreateClaim{Proof: proof})
		},
	}
	createClaim.Flags().String(flagFile, "", "claim the proof of this file")

	revokeClaim := &cobra.Command{
		Use:   "revoke-claim [proof]",
		Short: "Revoke an owned claim, releasing the claim deposit",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, err := proofFromArgs(cmd, args)
			if err != nil {
				return err
			}
			return broadcast(cmd, types.MsgRevokeClaim{Proof: proof})
		},
	}
	revokeClaim.Flags().String(flagFile, "", "revoke the proof of this file")

	transfer := &cobra.Command{
		Use:   "transfer <to> <amount>",
		Short: "Move free balance to another account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			to, err := types.ParseAccountID(args[0])
			if err != nil {
				return err
			}
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			msg := types.MsgTransfer{To: to, Amount: amount}
			if err := msg.ValidateBasic(); err != nil {
				return err
			}
			return broadcast(cmd, msg)
		},
	}

	cmd.AddCommand(createClaim, revokeClaim, transfer)
	return cmd
}

// broadcast signs msg with the node key using the current account nonce and
// waits for the block including it.
func broadcast(cmd *cobra.Command, msg types.Msg) error {
	ctx := cmd.Context()
	key, err := loadNodeKey(cmd)
	if err != nil {
		return err
	}
	c, err := newRPCClient(cmd)
	if err != nil {
		return err
	}

	status, err := c.Status(ctx)
	if err != nil {
		return err
	}
	acc, err := c.Account(ctx, key.PubKey().Address())
	if err != nil {
		return err
	}

	stx, err := types.SignTx(key.PrivKey, types.Body{
		ChainID: status.NodeInfo.ChainID,
		Nonce:   acc.Nonce,
		Msg:     msg,
	})
	if err != nil {
		return err
	}
	tx, err := stx.MarshalBinary()
	if err != nil {
		return err
	}

	res, err := c.BroadcastTxCommit(ctx, tx)
	if err != nil {
		return err
	}
	if err := printJSON(cmd, res); err != nil {
		return err
	}
	switch {
	case res.CheckTx.Code != state.CodeTypeOK:
		return fmt.Errorf("transaction rejected with code %d: %s", res.CheckTx.Code, res.CheckTx.Log)
	case res.DeliverTx != nil && res.DeliverTx.Code != state.CodeTypeOK:
		return fmt.Errorf("transaction failed with code %d: %s", res.DeliverTx.Code, res.DeliverTx.Log)
	}
	return nil
}
