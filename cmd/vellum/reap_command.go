package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReapCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reap",
		Short: "Reclaim units stuck in illustrating",
		Long: "Returns units whose claim is older than the stuck timeout to the " +
			"analyzed state so a live consumer can pick them up. Consumers do this " +
			"automatically on every poll; the command exists for manual recovery.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			_, store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			reaped, err := store.ReapStuck(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reclaimed %d stuck unit(s)\n", reaped)
			return nil
		},
	}
}
