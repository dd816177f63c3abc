package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-bridge/abi"
)

func newDescribeCommand() *cobra.Command {
	var core bool
	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Print the host imports and guest exports of the boundary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return describe(cmd.OutOrStdout(), core)
		},
	}
	cmd.Flags().BoolVar(&core, "core", false, "print lowered core signatures instead of WIT")
	return cmd
}

func describe(w io.Writer, core bool) error {
	sections := []struct {
		title   string
		fns     []abi.Function
		imports bool
	}{
		{"imports (module " + abi.SystemModule + ")", abi.SystemImports, true},
		{"exports", abi.ApplicationExports, false},
	}
	for i, s := range sections {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s:\n", s.title)
		for _, fn := range s.fns {
			if !core {
				fmt.Fprintf(w, "  %s;\n", fn.WIT())
				continue
			}
			params, results := fn.CoreExport()
			if s.imports {
				params, results = fn.CoreImport()
			}
			fmt.Fprintf(w, "  %s(%s) -> (%s)\n", fn.Name, joinTypes(params), joinTypes(results))
		}
	}
	return nil
}

func joinTypes(types []abi.ValueType) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = t.String()
	}
	return strings.Join(parts, ", ")
}
