package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// env is the state shared by every subcommand once flags are parsed.
type env struct {
	cfg    config
	log    *zap.Logger
	cancel context.CancelFunc
}

func newRootCommand() *cobra.Command {
	e := &env{log: zap.NewNop()}
	root := &cobra.Command{
		Use:           "bridge",
		Short:         "Run guest applications against the host system API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.init(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if e.cancel != nil {
				e.cancel()
			}
			_ = e.log.Sync()
		},
	}
	addGlobalFlags(root.PersistentFlags())
	root.AddCommand(
		newRunCommand(e),
		newInteractiveCommand(e),
		newDescribeCommand(),
		newBackendsCommand(),
		newDemoGuestCommand(),
	)
	return root
}

func (e *env) init(cmd *cobra.Command) error {
	v, err := newViper(cmd)
	if err != nil {
		return err
	}
	if e.cfg, err = loadConfig(v); err != nil {
		return err
	}
	if e.log, err = newLogger(e.cfg.LogLevel, e.cfg.LogFormat); err != nil {
		return err
	}
	installLogger(e.log)

	if e.cfg.MetricsAddr != "" {
		var ctx context.Context
		ctx, e.cancel = context.WithCancel(cmd.Context())
		return serveMetrics(ctx, e.cfg.MetricsAddr, e.log)
	}
	return nil
}
