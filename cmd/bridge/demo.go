package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/internal/guestmod"
)

func newDemoGuestCommand() *cobra.Command {
	var allocOnly bool
	cmd := &cobra.Command{
		Use:   "demo-guest <out.wasm>",
		Short: "Write a demo guest that keeps its argument as application state",
		Long: "execute_operation and execute_effect store their argument and return the\n" +
			"previous state; query_application returns the state; call_application and\n" +
			"call_session echo their argument.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bytecode := guestmod.StateGuest()
			if allocOnly {
				bytecode = guestmod.AllocOnlyGuest()
			}
			if err := os.WriteFile(args[0], bytecode, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[0], len(bytecode))
			return nil
		},
	}
	cmd.Flags().BoolVar(&allocOnly, "alloc-only", false, "export only alloc(size) as the allocator")
	return cmd
}
