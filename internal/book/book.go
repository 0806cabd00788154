// Package book splits a source document into ordered chapters, the work
// units the rest of the pipeline coordinates on.
//
// Plain-text and Markdown sources are supported. Chapter boundaries are
// Markdown level-1/2 headings or "Chapter N" style lines; a document with
// no recognizable boundaries becomes a single chapter. EPUB/PDF extraction
// happens upstream and hands this package plain text.
package book

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"vellum/internal/manifest"
)

// Chapter is one ordered work unit of the source document.
type Chapter struct {
	ID      int
	Ordinal int
	Title   string
	Text    string
}

var (
	markdownHeading = regexp.MustCompile(`^#{1,2}\s+(.+?)\s*$`)
	chapterHeading  = regexp.MustCompile(`(?i)^\s*(chapter|part)\s+([0-9]+|[ivxlcdm]+)\b[.:\s-]*(.*)$`)
)

// ParseFile reads path and splits it into chapters.
func ParseFile(path string) ([]Chapter, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open book: %w", err)
	}
	defer file.Close()

	type section struct {
		title string
		lines []string
	}

	var (
		sections []section
		current  *section
	)

	appendLine := func(line string) {
		if current == nil {
			current = &section{title: ""}
		}
		current.lines = append(current.lines, line)
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if title, ok := headingTitle(line); ok {
			if current != nil {
				sections = append(sections, *current)
			}
			current = &section{title: title}
			continue
		}
		appendLine(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}
	if current != nil {
		sections = append(sections, *current)
	}

	var chapters []Chapter
	ordinal := 0
	for _, sec := range sections {
		text := strings.TrimSpace(strings.Join(sec.lines, "\n"))
		if text == "" && sec.title == "" {
			continue
		}
		// Front matter before the first heading is skipped unless it is
		// the only content in the document.
		if sec.title == "" && len(sections) > 1 {
			continue
		}
		ordinal++
		title := sec.title
		if title == "" {
			title = fmt.Sprintf("Chapter %d", ordinal)
		}
		chapters = append(chapters, Chapter{
			ID:      ordinal,
			Ordinal: ordinal,
			Title:   title,
			Text:    text,
		})
	}

	if len(chapters) == 0 {
		return nil, errors.New("no chapters found in source document")
	}
	return chapters, nil
}

func headingTitle(line string) (string, bool) {
	if m := markdownHeading.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1]), true
	}
	if m := chapterHeading.FindStringSubmatch(line); m != nil {
		title := strings.TrimSpace(line)
		if rest := strings.TrimSpace(m[3]); rest != "" {
			title = fmt.Sprintf("%s %s: %s", titleWord(m[1]), strings.ToUpper(m[2]), rest)
		}
		return title, true
	}
	return "", false
}

func titleWord(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
}

// Seeds converts chapters to manifest unit seeds.
func Seeds(chapters []Chapter) []manifest.UnitSeed {
	seeds := make([]manifest.UnitSeed, 0, len(chapters))
	for _, chapter := range chapters {
		seeds = append(seeds, manifest.UnitSeed{
			ID:      chapter.ID,
			Ordinal: chapter.Ordinal,
			Title:   chapter.Title,
			Source:  fmt.Sprintf("chapter-%03d", chapter.Ordinal),
		})
	}
	return seeds
}

// ByID indexes chapters for constant-time lookup during processing.
func ByID(chapters []Chapter) map[int]Chapter {
	index := make(map[int]Chapter, len(chapters))
	for _, chapter := range chapters {
		index[chapter.ID] = chapter
	}
	return index
}
