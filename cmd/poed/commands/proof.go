package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/spf13/cobra"

	"github.com/rollkit/poe/types"
)

const flagFile = "file"

// proofFromFile hashes the content of path into a CIDv1 (raw codec, sha2-256)
// whose binary form is the proof.
func proofFromFile(path string) (types.Proof, cid.Cid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, cid.Undef, err
	}
	defer f.Close() //nolint:errcheck

	sum, err := multihash.SumStream(f, multihash.SHA2_256, -1)
	if err != nil {
		return nil, cid.Undef, fmt.Errorf("failed to hash %s: %w", path, err)
	}
	c := cid.NewCidV1(cid.Raw, sum)
	return types.Proof(c.Bytes()), c, nil
}

// parseProof accepts a hex encoded proof or a CID string.
func parseProof(s string) (types.Proof, error) {
	proof, err := types.ParseProof(s, types.MaxProofLengthLimit)
	if err == nil {
		return proof, nil
	}
	c, cidErr := cid.Decode(s)
	if cidErr != nil {
		return nil, err
	}
	return types.Proof(c.Bytes()), nil
}

// proofFromArgs returns the proof named by --file or by the single positional argument.
func proofFromArgs(cmd *cobra.Command, args []string) (types.Proof, error) {
	file, _ := cmd.Flags().GetString(flagFile)
	switch {
	case file != "" && len(args) > 0:
		return nil, errors.New("pass either a proof or --file, not both")
	case file != "":
		proof, _, err := proofFromFile(file)
		return proof, err
	case len(args) == 1:
		return parseProof(args[0])
	default:
		return nil, errors.New("a proof (hex or CID) or --file is required")
	}
}

// NewProofCmd returns the command printing the proof of a file.
func NewProofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proof <file>",
		Short: "Print the proof (CID) of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			proof, c, err := proofFromFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cid:   %s\nproof: %s\n", c, proof)
			return nil
		},
	}
}
