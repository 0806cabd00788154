package main

import (
	"github.com/spf13/cobra"
)

func newConsumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Run only the rendering half of the pipeline",
		Long: "Polls the manifest for analyzed chapters and renders their scenes. " +
			"Multiple consume processes can run against the same workspace; the manifest " +
			"guarantees each chapter is claimed by exactly one of them.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			_, con, err := ctx.newConsumer(logger)
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()
			return con.Run(runCtx)
		},
	}
}
