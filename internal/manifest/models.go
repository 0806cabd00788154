package manifest

import (
	"sort"
	"strings"
	"time"
)

// SchemaVersion is bumped whenever the on-disk manifest layout changes.
const SchemaVersion = 1

// Status represents the lifecycle of a work unit.
type Status string

const (
	StatusPending      Status = "pending"
	StatusAnalyzed     Status = "analyzed"
	StatusIllustrating Status = "illustrating"
	StatusIllustrated  Status = "illustrated"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusAnalyzed,
	StatusIllustrating,
	StatusIllustrated,
	StatusFailed,
}

// legalTransitions encodes the per-unit state machine. The illustrating →
// analyzed edge is the sanctioned reaper regression; everything else is
// monotonic. failed → pending supports explicit retry requests.
var legalTransitions = map[Status][]Status{
	StatusPending:      {StatusAnalyzed, StatusFailed},
	StatusAnalyzed:     {StatusIllustrating},
	StatusIllustrating: {StatusIllustrated, StatusFailed, StatusAnalyzed},
	StatusFailed:       {StatusAnalyzed, StatusPending},
	StatusIllustrated:  {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// CanTransition reports whether from → to is a legal lifecycle edge.
func CanTransition(from, to Status) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Scene is one illustratable moment identified during chapter analysis.
type Scene struct {
	Index          int      `json:"index"`
	Summary        string   `json:"summary"`
	VisualElements string   `json:"visualElements"`
	Entities       []string `json:"entities,omitempty"`
}

// Analysis is the producer's pass-2 payload for a unit.
type Analysis struct {
	Summary string  `json:"summary,omitempty"`
	Scenes  []Scene `json:"scenes"`
}

// Metrics accumulates token and cost accounting across remote calls.
type Metrics struct {
	PromptTokens     int64   `json:"promptTokens,omitempty"`
	CompletionTokens int64   `json:"completionTokens,omitempty"`
	CostUSD          float64 `json:"costUsd,omitempty"`
	Attempts         int     `json:"attempts,omitempty"`
}

// Add folds another metrics sample into m.
func (m *Metrics) Add(other Metrics) {
	m.PromptTokens += other.PromptTokens
	m.CompletionTokens += other.CompletionTokens
	m.CostUSD += other.CostUSD
	m.Attempts += other.Attempts
}

// Unit is the per-chapter coordination record. Units are created at
// discovery and never deleted; forced re-runs supersede prior state rather
// than erasing history.
type Unit struct {
	ID      int    `json:"id"`
	Ordinal int    `json:"ordinal"`
	Title   string `json:"title,omitempty"`
	Source  string `json:"source,omitempty"`

	Status Status `json:"status"`

	DiscoveredAt time.Time  `json:"discoveredAt"`
	AnalyzedAt   *time.Time `json:"analyzedAt,omitempty"`
	ClaimedAt    *time.Time `json:"claimedAt,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`

	ClaimOwner string `json:"claimOwner,omitempty"`

	Analysis *Analysis `json:"analysis,omitempty"`
	Images   []string  `json:"images,omitempty"`
	Metrics  Metrics   `json:"metrics,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Manifest is the single shared coordination document.
type Manifest struct {
	SchemaVersion    int           `json:"schemaVersion"`
	CatalogReady     bool          `json:"catalogReady"`
	ProducerComplete bool          `json:"producerComplete"`
	ConsumerComplete bool          `json:"consumerComplete"`
	Units            map[int]*Unit `json:"units"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// NewManifest returns an empty manifest at the current schema version.
func NewManifest() *Manifest {
	return &Manifest{
		SchemaVersion: SchemaVersion,
		Units:         make(map[int]*Unit),
	}
}

// Unit returns the unit with the given id, or nil.
func (m *Manifest) Unit(id int) *Unit {
	return m.Units[id]
}

// UnitsInOrder returns units sorted by ordinal position. Ordinal scanning
// keeps claim order, and therefore output, reproducible across runs.
func (m *Manifest) UnitsInOrder() []*Unit {
	units := make([]*Unit, 0, len(m.Units))
	for _, unit := range m.Units {
		units = append(units, unit)
	}
	sort.Slice(units, func(i, j int) bool {
		return units[i].Ordinal < units[j].Ordinal
	})
	return units
}

// Counts returns the number of units per status.
func (m *Manifest) Counts() map[Status]int {
	counts := make(map[Status]int, len(allStatuses))
	for _, unit := range m.Units {
		counts[unit.Status]++
	}
	return counts
}

// Terminal reports whether the whole pipeline is finished: both stages done
// and no unit still has work ahead of it.
func (m *Manifest) Terminal() bool {
	if !m.ProducerComplete || !m.ConsumerComplete {
		return false
	}
	for _, unit := range m.Units {
		switch unit.Status {
		case StatusPending, StatusAnalyzed, StatusIllustrating:
			return false
		}
	}
	return true
}

// UnitSeed describes a discovered chapter to register in the manifest.
type UnitSeed struct {
	ID      int
	Ordinal int
	Title   string
	Source  string
}
