package catalog_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vellum/internal/catalog"
)

func TestMergeDedupsCaseInsensitively(t *testing.T) {
	c := catalog.New()

	added := c.Merge([]catalog.Entity{
		{Name: "Mirabel", Category: "character", Description: "A cartographer.", Citations: []string{"chapter 1"}},
		{Name: "The Salt Road", Category: "place", Description: "A trade route.", Citations: []string{"chapter 1"}},
	})
	if added != 2 {
		t.Fatalf("expected 2 added, got %d", added)
	}

	added = c.Merge([]catalog.Entity{
		{Name: "MIRABEL", Category: "character", Description: "Carries a brass compass.", Citations: []string{"chapter 3", "chapter 1"}},
	})
	if added != 0 {
		t.Fatalf("expected merge, got %d added", added)
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entities, got %d", c.Len())
	}

	entity, ok := c.Lookup("character", "mirabel")
	if !ok {
		t.Fatal("expected case-insensitive lookup to hit")
	}
	if !strings.Contains(entity.Description, "cartographer") || !strings.Contains(entity.Description, "brass compass") {
		t.Fatalf("descriptions not merged: %q", entity.Description)
	}
	if len(entity.Citations) != 2 {
		t.Fatalf("citations not unioned: %v", entity.Citations)
	}
}

func TestMergeKeepsSameNameAcrossCategories(t *testing.T) {
	c := catalog.New()
	c.Merge([]catalog.Entity{
		{Name: "Avalon", Category: "place", Description: "An island."},
		{Name: "Avalon", Category: "object", Description: "A ship named for the island."},
	})
	if c.Len() != 2 {
		t.Fatalf("same name in different categories must not collide, got %d entities", c.Len())
	}
	if matches := c.LookupByName("avalon"); len(matches) != 2 {
		t.Fatalf("expected 2 name matches, got %d", len(matches))
	}
}

func TestMergeSkipsEmptyNames(t *testing.T) {
	c := catalog.New()
	if added := c.Merge([]catalog.Entity{{Name: "  ", Category: "character"}}); added != 0 {
		t.Fatalf("expected empty names skipped, got %d added", added)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")

	c := catalog.New()
	c.Merge([]catalog.Entity{
		{Name: "Mirabel", Category: "character", Description: "A cartographer.", Citations: []string{"chapter 1"}},
	})
	if err := c.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := catalog.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected 1 entity, got %d", loaded.Len())
	}
	// Index must be rebuilt after load.
	if _, ok := loaded.Lookup("character", "MIRABEL"); !ok {
		t.Fatal("lookup after load failed")
	}
}

func TestLoadAbsentReturnsEmpty(t *testing.T) {
	c, err := catalog.Load(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Len() != 0 {
		t.Fatalf("expected empty catalog, got %d entities", c.Len())
	}
}

func TestRenderMarkdownGroupsByCategory(t *testing.T) {
	c := catalog.New()
	c.Merge([]catalog.Entity{
		{Name: "Mirabel", Category: "character", Description: "A cartographer.", Citations: []string{"chapter 1"}},
		{Name: "The Salt Road", Category: "place", Description: "A trade route."},
	})

	doc := c.RenderMarkdown()
	if !strings.Contains(doc, "## Character") || !strings.Contains(doc, "## Place") {
		t.Fatalf("missing category sections:\n%s", doc)
	}
	if !strings.Contains(doc, "### Mirabel") || !strings.Contains(doc, "*Appears in: chapter 1*") {
		t.Fatalf("missing entity detail:\n%s", doc)
	}
	if strings.Index(doc, "## Character") > strings.Index(doc, "## Place") {
		t.Fatalf("categories not sorted:\n%s", doc)
	}
}

func TestSaveDocumentWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "References.md")
	c := catalog.New()
	c.Merge([]catalog.Entity{{Name: "Mirabel", Category: "character"}})

	if err := c.SaveDocument(path); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	if !strings.HasPrefix(string(data), "# Reference Catalog") {
		t.Fatalf("unexpected document header: %q", string(data)[:40])
	}
}
