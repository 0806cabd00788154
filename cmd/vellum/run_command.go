package main

import (
	"github.com/spf13/cobra"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var concurrent bool

	cmd := &cobra.Command{
		Use:   "run <book>",
		Short: "Analyze and illustrate a book end to end",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			_, _, pipeline, err := ctx.newPipeline(logger)
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()
			return pipeline.Run(runCtx, args[0], concurrent)
		},
	}

	cmd.Flags().BoolVar(&concurrent, "concurrent", false, "Run analysis and rendering side by side")
	return cmd
}
