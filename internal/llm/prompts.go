package llm

import (
	"context"
	"fmt"
	"strings"

	"vellum/internal/catalog"
	"vellum/internal/manifest"
)

// ReferenceExtractionPrompt instructs the model to mine a chapter for named
// entities worth carrying into the shared reference catalog.
const ReferenceExtractionPrompt = `You are a literary analyst building a visual reference guide for a book illustrator.
Read the chapter and extract every named entity an illustrator must draw consistently: characters, places, and significant objects.
Respond with JSON only, in this shape:
{"entities":[{"name":"...","category":"character|place|object|other","description":"concise visual description, 1-3 sentences"}]}
Describe physical appearance only. Do not invent details the text does not support. Skip entities with no visual relevance.`

// SceneAnalysisPrompt instructs the model to break a chapter into
// illustratable scenes grounded in the reference catalog.
const SceneAnalysisPrompt = `You are a literary analyst selecting scenes for a book illustrator.
Read the chapter and choose its 1-3 most visually striking scenes.
Respond with JSON only, in this shape:
{"summary":"one-paragraph chapter summary","scenes":[{"summary":"what happens","visual_elements":"composition, lighting, setting details","entities":["names from the reference catalog present in the scene"]}]}
Use only entity names that appear in the supplied reference catalog. Order scenes as they occur in the chapter.`

type referencePayload struct {
	Entities []struct {
		Name        string `json:"name"`
		Category    string `json:"category"`
		Description string `json:"description"`
	} `json:"entities"`
}

// ExtractReferences runs the first-pass analysis for one chapter and returns
// the entities it mentions, cited against the chapter title.
func (c *Client) ExtractReferences(ctx context.Context, chapterTitle, chapterText string) ([]catalog.Entity, Usage, error) {
	user := fmt.Sprintf("Chapter: %s\n\n%s", chapterTitle, chapterText)
	content, usage, err := c.CompleteJSON(ctx, ReferenceExtractionPrompt, user)
	if err != nil {
		return nil, usage, err
	}
	var payload referencePayload
	if err := DecodeModelJSON(content, &payload); err != nil {
		return nil, usage, fmt.Errorf("extract references: parse payload: %w", err)
	}
	entities := make([]catalog.Entity, 0, len(payload.Entities))
	for _, raw := range payload.Entities {
		name := strings.TrimSpace(raw.Name)
		if name == "" {
			continue
		}
		entities = append(entities, catalog.Entity{
			Name:        name,
			Category:    strings.ToLower(strings.TrimSpace(raw.Category)),
			Description: strings.TrimSpace(raw.Description),
			Citations:   []string{chapterTitle},
		})
	}
	return entities, usage, nil
}

type scenePayload struct {
	Summary string `json:"summary"`
	Scenes  []struct {
		Summary        string   `json:"summary"`
		VisualElements string   `json:"visual_elements"`
		Entities       []string `json:"entities"`
	} `json:"scenes"`
}

// AnalyzeScenes runs the second-pass analysis for one chapter against the
// completed reference catalog.
func (c *Client) AnalyzeScenes(ctx context.Context, chapterTitle, chapterText string, refs *catalog.Catalog) (*manifest.Analysis, Usage, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Reference catalog:\n%s\n\n", refs.RenderMarkdown())
	fmt.Fprintf(&sb, "Chapter: %s\n\n%s", chapterTitle, chapterText)

	content, usage, err := c.CompleteJSON(ctx, SceneAnalysisPrompt, sb.String())
	if err != nil {
		return nil, usage, err
	}
	var payload scenePayload
	if err := DecodeModelJSON(content, &payload); err != nil {
		return nil, usage, fmt.Errorf("analyze scenes: parse payload: %w", err)
	}
	if len(payload.Scenes) == 0 {
		return nil, usage, fmt.Errorf("analyze scenes: model returned no scenes for %q", chapterTitle)
	}
	analysis := &manifest.Analysis{Summary: strings.TrimSpace(payload.Summary)}
	for i, raw := range payload.Scenes {
		analysis.Scenes = append(analysis.Scenes, manifest.Scene{
			Index:          i + 1,
			Summary:        strings.TrimSpace(raw.Summary),
			VisualElements: strings.TrimSpace(raw.VisualElements),
			Entities:       raw.Entities,
		})
	}
	return analysis, usage, nil
}
