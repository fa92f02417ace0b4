package main

import (
	"github.com/spf13/cobra"

	"talk2me/cmd/talk2me/tui"
)

// newTuiCmd builds `talk2me tui`, the interactive terminal client.
func newTuiCmd() *cobra.Command {
	var addr, key string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Interactive terminal chat client",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.Run(addr, key)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "localhost:9999", "server address")
	cmd.Flags().StringVar(&key, "key", "", "base64 encryption key (required)")
	cmd.MarkFlagRequired("key")
	return cmd
}
