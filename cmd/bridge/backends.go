package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/runtime"
)

func newBackendsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "backends",
		Short: "List the registered sandbox backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range runtime.Names() {
				marker := " "
				if name == runtime.DefaultBackend {
					marker = "*"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", marker, name)
			}
			return nil
		},
	}
}
