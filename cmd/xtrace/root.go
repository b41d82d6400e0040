package main

import (
	"github.com/spf13/cobra"

	"github.com/imattdu/xtrace/config"
)

type options struct {
	configPath string
	cfg        *config.Config
}

// newRootCmd builds the xtrace command tree. Every subcommand sees the
// configuration loaded from the environment and the optional --config file.
func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "xtrace",
		Short: "X-Trace collector and report tools.",
		Long: `xtrace runs the report collector and works with the reports ` +
			`it stores: sending report streams, listing tasks and ` +
			`reconstructing the start/end index of a task.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(opts.configPath)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML file overlaid on XTRACE_* settings")

	root.AddCommand(
		newServeCmd(opts),
		newSendCmd(opts),
		newIndexCmd(opts),
		newTasksCmd(opts),
	)
	return root
}
