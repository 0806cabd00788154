package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"vellum/internal/compile"
)

func newCompileCommand(ctx *commandContext) *cobra.Command {
	var (
		format string
		title  string
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Assemble output artifacts from a finished run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := ctx.newLogger()
			if err != nil {
				return err
			}
			cfg, store, err := ctx.openStore(logger)
			if err != nil {
				return err
			}
			compiler := compile.New(cfg, store, logger)
			out := cmd.OutOrStdout()

			wantMarkdown := format == "markdown" || format == "all"
			wantCBZ := format == "cbz" || format == "all"
			if !wantMarkdown && !wantCBZ {
				return fmt.Errorf("unknown format %q (markdown, cbz, all)", format)
			}

			if wantMarkdown {
				path := filepath.Join(cfg.Paths.OutputDir, "Book.md")
				if err := compiler.Markdown(cmd.Context(), title, path); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
			}
			if wantCBZ {
				name := strings.ReplaceAll(strings.ToLower(title), " ", "_") + ".cbz"
				path := filepath.Join(cfg.Paths.OutputDir, name)
				if err := compiler.CBZ(cmd.Context(), path); err != nil {
					return err
				}
				fmt.Fprintf(out, "Wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "all", "Artifacts to build: markdown, cbz, or all")
	cmd.Flags().StringVar(&title, "title", "Illustrated Edition", "Book title for the generated artifacts")
	return cmd
}
