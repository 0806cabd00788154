package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"vellum/internal/atomicfile"
)

// Entity is one named reference (character, place, object) extracted from
// the book during pass 1.
type Entity struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description"`
	Citations   []string `json:"citations,omitempty"`
}

// Catalog is the shared reference corpus. It grows by append/merge only;
// entities are never removed once recorded.
type Catalog struct {
	Entities []Entity `json:"entities"`

	index map[string]int
}

var folder = cases.Fold()

// Key returns the dedup key for an entity: category plus the case-folded,
// whitespace-collapsed name.
func Key(category, name string) string {
	normalized := folder.String(strings.Join(strings.Fields(name), " "))
	return strings.ToLower(strings.TrimSpace(category)) + "\x00" + normalized
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{index: make(map[string]int)}
}

func (c *Catalog) ensureIndex() {
	if c.index != nil {
		return
	}
	c.index = make(map[string]int, len(c.Entities))
	for i, entity := range c.Entities {
		c.index[Key(entity.Category, entity.Name)] = i
	}
}

// Len returns the number of distinct entities.
func (c *Catalog) Len() int {
	return len(c.Entities)
}

// Lookup returns the entity matching the given category and name under the
// dedup key, if present.
func (c *Catalog) Lookup(category, name string) (Entity, bool) {
	c.ensureIndex()
	if i, ok := c.index[Key(category, name)]; ok {
		return c.Entities[i], true
	}
	return Entity{}, false
}

// LookupByName returns all entities whose case-folded name matches,
// regardless of category. Used for prompt enrichment where the category is
// not known.
func (c *Catalog) LookupByName(name string) []Entity {
	folded := folder.String(strings.Join(strings.Fields(name), " "))
	var matches []Entity
	for _, entity := range c.Entities {
		if folder.String(strings.Join(strings.Fields(entity.Name), " ")) == folded {
			matches = append(matches, entity)
		}
	}
	return matches
}

// Merge folds the given entities into the catalog. Name collisions within
// a category merge descriptions and union citations; nothing is dropped.
// Returns the number of newly added (not merged) entities.
func (c *Catalog) Merge(entities []Entity) int {
	c.ensureIndex()
	added := 0
	for _, entity := range entities {
		entity.Name = strings.TrimSpace(entity.Name)
		entity.Category = strings.TrimSpace(entity.Category)
		entity.Description = strings.TrimSpace(entity.Description)
		if entity.Name == "" {
			continue
		}
		if entity.Category == "" {
			entity.Category = "other"
		}

		key := Key(entity.Category, entity.Name)
		if i, ok := c.index[key]; ok {
			c.Entities[i] = mergeEntity(c.Entities[i], entity)
			continue
		}
		c.index[key] = len(c.Entities)
		c.Entities = append(c.Entities, entity)
		added++
	}
	return added
}

func mergeEntity(existing, incoming Entity) Entity {
	if incoming.Description != "" && !strings.Contains(
		folder.String(existing.Description), folder.String(incoming.Description)) {
		if existing.Description == "" {
			existing.Description = incoming.Description
		} else {
			existing.Description = existing.Description + " " + incoming.Description
		}
	}

	seen := make(map[string]struct{}, len(existing.Citations))
	for _, citation := range existing.Citations {
		seen[citation] = struct{}{}
	}
	for _, citation := range incoming.Citations {
		citation = strings.TrimSpace(citation)
		if citation == "" {
			continue
		}
		if _, ok := seen[citation]; ok {
			continue
		}
		seen[citation] = struct{}{}
		existing.Citations = append(existing.Citations, citation)
	}
	return existing
}

// Categories returns the distinct categories in display order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]struct{})
	var categories []string
	for _, entity := range c.Entities {
		key := strings.ToLower(entity.Category)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		categories = append(categories, entity.Category)
	}
	sort.Strings(categories)
	return categories
}

// ByCategory returns entities in the given category sorted by name.
func (c *Catalog) ByCategory(category string) []Entity {
	var entities []Entity
	for _, entity := range c.Entities {
		if strings.EqualFold(entity.Category, category) {
			entities = append(entities, entity)
		}
	}
	sort.Slice(entities, func(i, j int) bool {
		return folder.String(entities[i].Name) < folder.String(entities[j].Name)
	})
	return entities
}

// Load reads a catalog from path, returning an empty catalog when the file
// does not exist yet.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return New(), nil
		}
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	c := New()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	c.index = nil
	c.ensureIndex()
	return c, nil
}

// Save atomically persists the catalog JSON to path.
func (c *Catalog) Save(path string) error {
	return atomicfile.WriteJSON(path, c)
}
