// Command talk2me runs a Talk2Me front or chat server, and doubles as a
// thin client for exercising the wire protocol by hand. Grounded on
// clawplaza-clawwork-cli's cobra root-with-subcommands layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "talk2me",
		Short: "Talk2Me encrypted chat service",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newClientCmd())
	root.AddCommand(newTuiCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
