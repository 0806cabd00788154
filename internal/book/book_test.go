package book_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vellum/internal/book"
)

func writeBook(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "book.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write book: %v", err)
	}
	return path
}

func TestParseFileMarkdownHeadings(t *testing.T) {
	path := writeBook(t, `Title page text that is front matter.

# The Lighthouse

Mirabel climbed the stairs.

# The Salt Road

The caravan left at dawn.
`)

	chapters, err := book.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	if chapters[0].Title != "The Lighthouse" || chapters[1].Title != "The Salt Road" {
		t.Fatalf("unexpected titles: %q, %q", chapters[0].Title, chapters[1].Title)
	}
	if chapters[0].Ordinal != 1 || chapters[1].Ordinal != 2 {
		t.Fatalf("ordinals not sequential: %d, %d", chapters[0].Ordinal, chapters[1].Ordinal)
	}
	if !strings.Contains(chapters[0].Text, "Mirabel climbed") {
		t.Fatalf("chapter text missing: %q", chapters[0].Text)
	}
	if strings.Contains(chapters[0].Text, "front matter") {
		t.Fatal("front matter leaked into chapter 1")
	}
}

func TestParseFileChapterLines(t *testing.T) {
	path := writeBook(t, `Chapter 1

It began with a map.

CHAPTER 2: The Crossing

They crossed at night.
`)

	chapters, err := book.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(chapters) != 2 {
		t.Fatalf("expected 2 chapters, got %d", len(chapters))
	}
	if !strings.Contains(chapters[1].Title, "The Crossing") {
		t.Fatalf("unexpected title %q", chapters[1].Title)
	}
}

func TestParseFileNoHeadingsSingleChapter(t *testing.T) {
	path := writeBook(t, "Just one stretch of prose with no headings at all.\n")

	chapters, err := book.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	if len(chapters) != 1 {
		t.Fatalf("expected 1 chapter, got %d", len(chapters))
	}
	if chapters[0].Title != "Chapter 1" {
		t.Fatalf("expected synthesized title, got %q", chapters[0].Title)
	}
}

func TestParseFileEmptyDocument(t *testing.T) {
	path := writeBook(t, "\n\n")
	if _, err := book.ParseFile(path); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestSeedsAndByID(t *testing.T) {
	chapters := []book.Chapter{
		{ID: 1, Ordinal: 1, Title: "One", Text: "a"},
		{ID: 2, Ordinal: 2, Title: "Two", Text: "b"},
	}
	seeds := book.Seeds(chapters)
	if len(seeds) != 2 || seeds[1].Source != "chapter-002" {
		t.Fatalf("unexpected seeds: %#v", seeds)
	}
	index := book.ByID(chapters)
	if index[2].Title != "Two" {
		t.Fatalf("unexpected index: %#v", index)
	}
}
