package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/runtime"
)

func newRunCommand(e *env) *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "run <guest.wasm> <entry-point> [argument]",
		Short: "Prepare a guest and drive one entry point to completion",
		Long: "Entry points: execute_operation, execute_effect, call_application,\n" +
			"call_session, query_application.",
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := parseEntrypoint(args[1])
			if err != nil {
				return err
			}
			var raw string
			if len(args) == 3 {
				raw = args[2]
			}
			arg, err := opts.argument(raw)
			if err != nil {
				return fmt.Errorf("decode argument: %w", err)
			}

			return e.withExecutor(cmd.Context(), args[0], func(ctx context.Context, exec runtime.Executor) error {
				callCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
				defer cancel()
				out, err := invoke(callCtx, exec, entry, arg, &opts)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
				return err
			})
		},
	}
	opts.addFlags(cmd.Flags())
	return cmd
}

// withExecutor prepares guest on the configured backend and storage, runs
// fn and tears everything down.
func (e *env) withExecutor(ctx context.Context, guest string, fn func(context.Context, runtime.Executor) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	bytecode, err := os.ReadFile(guest)
	if err != nil {
		return fmt.Errorf("read guest: %w", err)
	}

	storage, closeStorage, err := e.cfg.openStorage()
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer func() {
		if err := closeStorage(); err != nil {
			e.log.Warn("close state", zap.Error(err))
		}
	}()

	backend, err := e.cfg.backend(ctx)
	if err != nil {
		return err
	}
	defer backend.Close(ctx)

	exec, err := backend.Prepare(ctx, bytecode, storage, runtime.WithLogger(e.log))
	if err != nil {
		return err
	}
	defer exec.Close(ctx)

	e.log.Debug("prepared guest",
		zap.String("guest", guest),
		zap.String("backend", exec.Backend()),
		zap.Stringer("app", e.cfg.App))
	return fn(ctx, exec)
}
