package main

import (
	"github.com/spf13/cobra"
)

func newProduceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "produce <book>",
		Short: "Run only the analysis half of the pipeline",
		Long: "Registers the book's chapters, builds the reference catalog, and stores " +
			"scene analyses in the manifest. Pair with `vellum consume` running in other " +
			"processes to render as analyses land.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			_, p, err := ctx.newProducer(logger)
			if err != nil {
				return err
			}
			runCtx, cancel := signalContext(cmd.Context())
			defer cancel()
			return p.Run(runCtx, args[0])
		},
	}
}
