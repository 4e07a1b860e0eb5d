package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rollkit/poe/cmd/poed/commands"
)

func main() {
	rootCmd := commands.NewRootCmd()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
