package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollkit/poe/config"
	rpcjson "github.com/rollkit/poe/rpc/json"
)

const flagNode = "node"

func addClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String(flagNode, config.DefaultListenAddress, "RPC address of the node")
}

func newRPCClient(cmd *cobra.Command) (*rpcjson.HTTPClient, error) {
	v, err := newViper(cmd)
	if err != nil {
		return nil, err
	}
	return rpcjson.NewHTTPClient(v.GetString(flagNode)), nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	bz, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(bz))
	return err
}
