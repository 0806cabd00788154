package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"vellum/internal/catalog"
)

func newCatalogCommand(ctx *commandContext) *cobra.Command {
	var markdown bool

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Show the reference catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			refs, err := catalog.Load(cfg.CatalogPath())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if refs.Len() == 0 {
				fmt.Fprintln(out, "catalog is empty; run `vellum produce` first")
				return nil
			}

			if markdown {
				fmt.Fprint(out, refs.RenderMarkdown())
				return nil
			}

			var rows [][]string
			for _, category := range refs.Categories() {
				for _, entity := range refs.ByCategory(category) {
					rows = append(rows, []string{
						category,
						entity.Name,
						truncate(entity.Description, 64),
						strconv.Itoa(len(entity.Citations)),
					})
				}
			}
			fmt.Fprintln(out, renderTable(
				[]column{
					{title: "CATEGORY"},
					{title: "NAME"},
					{title: "DESCRIPTION"},
					{title: "CITATIONS", numeric: true},
				},
				rows,
			))
			fmt.Fprintf(out, "%d entities in %s\n", refs.Len(), strings.Join(refs.Categories(), ", "))
			return nil
		},
	}

	cmd.Flags().BoolVar(&markdown, "markdown", false, "Print the full Markdown reference document")
	return cmd
}
