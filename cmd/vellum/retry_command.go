package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newRetryFailedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry-failed [unit-id...]",
		Short: "Reset failed units for another attempt",
		Long: "Moves failed units back to pending so the next produce run analyzes " +
			"them again. With no arguments every failed unit is reset.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int, 0, len(args))
			for _, arg := range args {
				id, err := strconv.Atoi(arg)
				if err != nil {
					return fmt.Errorf("invalid unit id %q", arg)
				}
				ids = append(ids, id)
			}

			_, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			_, store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			reset, err := store.RetryFailed(cmd.Context(), ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d failed unit(s)\n", reset)
			return nil
		},
	}
}
