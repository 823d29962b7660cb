package models

import "time"

// Conflict categories. Categories are open-ended tags; these are the ones
// the built-in classifier emits. Custom tags are allowed in rules.
const (
	CategoryStructural    = "structural"
	CategoryStyle         = "style"
	CategorySchema        = "schema"
	CategoryConfiguration = "configuration"
)

// DiffChange is one line-level delta between two versions. It is persisted
// as JSON inside the conflict log.
type DiffChange struct {
	// Line is the 1-based line number the change applies to.
	Line int `json:"line"`
	// Kind is added, removed or modified.
	Kind ChangeKind `json:"kind"`
	// Content is the line content after the change (before, for removals).
	Content string `json:"content"`
	// Context optionally carries the surrounding unchanged line.
	Context string `json:"context,omitempty"`
}

// ConflictRecord describes a detected divergence between the local and
// remote version of one resource.
type ConflictRecord struct {
	ID         string
	ResourceID string

	// ResourcePath is the human-meaningful path of the resource, used for
	// category classification and override matching.
	ResourcePath string

	// Category is a classification tag (structural, style, schema,
	// configuration, or a custom tag).
	Category string

	// Score is the divergence score in [0,1] computed at detection time.
	Score float64

	LocalVersionID  string
	RemoteVersionID string

	// BaseVersionID is the common ancestor both sides were diffed against,
	// empty when no ancestor existed and the sides were compared directly.
	BaseVersionID string

	LocalChanges  []DiffChange
	RemoteChanges []DiffChange

	Status     ConflictStatus
	DetectedAt time.Time
}

// ResolutionOutcome is the single, final record of how a conflict ended.
type ResolutionOutcome struct {
	ConflictID         string
	Strategy           Strategy
	ResultingVersionID string
	ResolvedBy         ResolvedBy
	ResolvedAt         time.Time
}
