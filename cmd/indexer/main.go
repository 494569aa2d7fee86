// Command indexer loads event documents into the search engine.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "indexer",
		Short:        "Load event documents into the events index",
		Version:      version,
		SilenceUsage: true,
	}
	cmd.AddCommand(newLoadCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
