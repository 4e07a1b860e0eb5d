package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rollkit/poe/config"
)

// GitSHA is set at build time
var GitSHA string

// NewVersionCmd returns the command printing version info.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version info",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 0, 2, ' ', 0)
			fmt.Fprintf(w, "poed version:\t%v\n", config.Version)
			if GitSHA != "" {
				fmt.Fprintf(w, "poed git sha:\t%v\n", GitSHA)
			}
			return w.Flush()
		},
	}
}
