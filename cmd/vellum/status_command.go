package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"vellum/internal/logging"
	"vellum/internal/manifest"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pipeline progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, err := ctx.openStore(logging.NewNop())
			if err != nil {
				return err
			}
			m, err := store.Load(cmd.Context())
			if err != nil {
				return err
			}

			colorize := isatty.IsTerminal(os.Stdout.Fd())
			out := cmd.OutOrStdout()

			rows := make([][]string, 0, len(m.Units))
			for _, unit := range m.UnitsInOrder() {
				scenes := 0
				if unit.Analysis != nil {
					scenes = len(unit.Analysis.Scenes)
				}
				rows = append(rows, []string{
					strconv.Itoa(unit.ID),
					unit.Title,
					string(unit.Status),
					strconv.Itoa(scenes),
					strconv.Itoa(len(unit.Images)),
					strconv.Itoa(unit.Metrics.Attempts),
					truncate(unit.Error, 48),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					{title: "ID", numeric: true},
					{title: "TITLE"},
					statusColumn("STATUS", colorize),
					{title: "SCENES", numeric: true},
					{title: "IMAGES", numeric: true},
					{title: "ATTEMPTS", numeric: true},
					{title: "ERROR"},
				},
				rows,
			))

			counts := m.Counts()
			fmt.Fprintf(out, "catalog ready: %s  producer complete: %s  consumer complete: %s\n",
				yesNo(m.CatalogReady), yesNo(m.ProducerComplete), yesNo(m.ConsumerComplete))
			fmt.Fprintf(out, "pending %d | analyzed %d | illustrating %d | illustrated %d | failed %d\n",
				counts[manifest.StatusPending],
				counts[manifest.StatusAnalyzed],
				counts[manifest.StatusIllustrating],
				counts[manifest.StatusIllustrated],
				counts[manifest.StatusFailed],
			)
			return nil
		},
	}
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit-3]) + "..."
}
