// Package compile assembles final deliverables from a finished pipeline
// run: an illustrated Markdown edition of the book and a CBZ archive of the
// rendered scenes for comic readers.
package compile

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"vellum/internal/atomicfile"
	"vellum/internal/config"
	"vellum/internal/logging"
	"vellum/internal/manifest"
)

var sceneFilePattern = regexp.MustCompile(`chapter_(\d+)_scene_(\d+)`)

// Compiler builds output artifacts from the manifest and rendered images.
type Compiler struct {
	cfg    *config.Config
	store  *manifest.Store
	logger *slog.Logger
}

// New constructs a compiler.
func New(cfg *config.Config, store *manifest.Store, logger *slog.Logger) *Compiler {
	return &Compiler{
		cfg:    cfg,
		store:  store,
		logger: logging.WithComponent(logger, "compile"),
	}
}

// page is one rendered scene in reading order.
type page struct {
	Chapter int
	Scene   int
	Path    string
}

// sortPages orders paths by (chapter, scene) parsed from the file name.
// Unparseable names sort last.
func sortPages(paths []string) []page {
	pages := make([]page, 0, len(paths))
	for _, path := range paths {
		p := page{Chapter: 1 << 30, Scene: 1 << 30, Path: path}
		if m := sceneFilePattern.FindStringSubmatch(filepath.Base(path)); m != nil {
			p.Chapter, _ = strconv.Atoi(m[1])
			p.Scene, _ = strconv.Atoi(m[2])
		}
		pages = append(pages, p)
	}
	sort.Slice(pages, func(i, j int) bool {
		if pages[i].Chapter != pages[j].Chapter {
			return pages[i].Chapter < pages[j].Chapter
		}
		return pages[i].Scene < pages[j].Scene
	})
	return pages
}

// illustratedUnits returns the units with rendered images, in reading order.
func (c *Compiler) illustratedUnits(ctx context.Context) ([]*manifest.Unit, error) {
	m, err := c.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile: read manifest: %w", err)
	}
	var units []*manifest.Unit
	for _, unit := range m.UnitsInOrder() {
		if unit.Status == manifest.StatusIllustrated && len(unit.Images) > 0 {
			units = append(units, unit)
		}
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("compile: no illustrated units in %s", c.store.Path())
	}
	return units, nil
}

// Markdown writes an illustrated Markdown edition to outPath: per chapter,
// the summary followed by each scene's image and visual description.
func (c *Compiler) Markdown(ctx context.Context, title, outPath string) error {
	units, err := c.illustratedUnits(ctx)
	if err != nil {
		return err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", title)
	for _, unit := range units {
		fmt.Fprintf(&sb, "## %s\n\n", unit.Title)
		if unit.Analysis != nil && unit.Analysis.Summary != "" {
			fmt.Fprintf(&sb, "%s\n\n", unit.Analysis.Summary)
		}
		for i, imagePath := range unit.Images {
			rel := relativeTo(outPath, imagePath)
			fmt.Fprintf(&sb, "![%s scene %d](%s)\n\n", unit.Title, i+1, rel)
			if unit.Analysis != nil && i < len(unit.Analysis.Scenes) {
				scene := unit.Analysis.Scenes[i]
				if scene.Summary != "" {
					fmt.Fprintf(&sb, "%s\n\n", scene.Summary)
				}
				if scene.VisualElements != "" {
					fmt.Fprintf(&sb, "**Visual Elements:** %s\n\n", scene.VisualElements)
				}
			}
		}
	}

	if err := atomicfile.WriteFile(outPath, []byte(sb.String())); err != nil {
		return fmt.Errorf("compile: write markdown: %w", err)
	}
	c.logger.Info("markdown edition written",
		logging.String("path", outPath),
		logging.Int("chapters", len(units)),
	)
	return nil
}

// CBZ writes a comic archive of every rendered scene to outPath, paged in
// (chapter, scene) order.
func (c *Compiler) CBZ(ctx context.Context, outPath string) error {
	units, err := c.illustratedUnits(ctx)
	if err != nil {
		return err
	}
	var paths []string
	for _, unit := range units {
		paths = append(paths, unit.Images...)
	}
	pages := sortPages(paths)

	var buf bytes.Buffer
	archive := zip.NewWriter(&buf)
	for i, p := range pages {
		data, err := os.ReadFile(p.Path)
		if err != nil {
			return fmt.Errorf("compile: read page: %w", err)
		}
		// Sequential prefix keeps readers that sort strictly by name in
		// reading order.
		name := fmt.Sprintf("%03d_%s", i+1, filepath.Base(p.Path))
		writer, err := archive.Create(name)
		if err != nil {
			return fmt.Errorf("compile: add page %s: %w", name, err)
		}
		if _, err := writer.Write(data); err != nil {
			return fmt.Errorf("compile: write page %s: %w", name, err)
		}
	}
	if err := archive.Close(); err != nil {
		return fmt.Errorf("compile: finalize archive: %w", err)
	}

	if err := atomicfile.WriteFile(outPath, buf.Bytes()); err != nil {
		return fmt.Errorf("compile: write archive: %w", err)
	}
	c.logger.Info("cbz archive written",
		logging.String("path", outPath),
		logging.Int("pages", len(pages)),
	)
	return nil
}

// relativeTo rewrites imagePath relative to the directory of outPath so the
// Markdown links survive moving the output directory wholesale.
func relativeTo(outPath, imagePath string) string {
	rel, err := filepath.Rel(filepath.Dir(outPath), imagePath)
	if err != nil {
		return imagePath
	}
	return filepath.ToSlash(rel)
}
