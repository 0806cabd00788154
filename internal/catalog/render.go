package catalog

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vellum/internal/atomicfile"
)

var titler = cases.Title(language.English)

// RenderMarkdown produces the human-readable reference document: one
// section per category, one entry per entity with its merged description
// and citations.
func (c *Catalog) RenderMarkdown() string {
	var b strings.Builder
	b.WriteString("# Reference Catalog\n")

	if len(c.Entities) == 0 {
		b.WriteString("\nNo entities recorded yet.\n")
		return b.String()
	}

	for _, category := range c.Categories() {
		fmt.Fprintf(&b, "\n## %s\n", titler.String(category))
		for _, entity := range c.ByCategory(category) {
			fmt.Fprintf(&b, "\n### %s\n\n", entity.Name)
			if entity.Description != "" {
				b.WriteString(entity.Description)
				b.WriteString("\n")
			}
			if len(entity.Citations) > 0 {
				fmt.Fprintf(&b, "\n*Appears in: %s*\n", strings.Join(entity.Citations, ", "))
			}
		}
	}
	return b.String()
}

// SaveDocument regenerates the rendered reference document wholesale.
func (c *Catalog) SaveDocument(path string) error {
	return atomicfile.WriteFile(path, []byte(c.RenderMarkdown()))
}
