// Package models defines the data model shared by the conflict/version
// engine: versions, diff changes, conflict records, rules and outcomes.
// Status and strategy fields are closed types so that call sites can switch
// over them exhaustively instead of comparing loose strings.
package models

import "fmt"

// Origin tells where a version came from.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
	OriginMerge  Origin = "merge"
)

func (o Origin) String() string { return string(o) }

// ParseOrigin converts a stored string back into an Origin.
func ParseOrigin(s string) (Origin, error) {
	switch Origin(s) {
	case OriginLocal, OriginRemote, OriginMerge:
		return Origin(s), nil
	}
	return "", fmt.Errorf("unknown origin %q", s)
}

// ChangeKind classifies a single line-level delta.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeRemoved  ChangeKind = "removed"
	ChangeModified ChangeKind = "modified"
)

func (k ChangeKind) String() string { return string(k) }

// ConflictStatus is the lifecycle state of a ConflictRecord.
//
// Detected -> UnderReview -> {Resolved | Skipped}
// Detected -> AutoResolved
type ConflictStatus string

const (
	StatusDetected     ConflictStatus = "detected"
	StatusAutoResolved ConflictStatus = "auto_resolved"
	StatusUnderReview  ConflictStatus = "under_review"
	StatusResolved     ConflictStatus = "resolved"
	StatusSkipped      ConflictStatus = "skipped"
)

func (s ConflictStatus) String() string { return string(s) }

// Terminal reports whether no further transitions are allowed.
func (s ConflictStatus) Terminal() bool {
	switch s {
	case StatusAutoResolved, StatusResolved, StatusSkipped:
		return true
	}
	return false
}

// ParseConflictStatus converts a stored string back into a ConflictStatus.
func ParseConflictStatus(s string) (ConflictStatus, error) {
	switch ConflictStatus(s) {
	case StatusDetected, StatusAutoResolved, StatusUnderReview, StatusResolved, StatusSkipped:
		return ConflictStatus(s), nil
	}
	return "", fmt.Errorf("unknown conflict status %q", s)
}

// Strategy selects which side's content becomes authoritative.
type Strategy string

const (
	StrategyLocal  Strategy = "local"
	StrategyRemote Strategy = "remote"
	StrategyMerge  Strategy = "merge"
)

func (s Strategy) String() string { return string(s) }

// ParseStrategy converts a stored string back into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocal, StrategyRemote, StrategyMerge:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("unknown strategy %q", s)
}

// Sensitivity controls how large a divergence must be before a category of
// change is treated as conflicting. High flags any divergence; low only
// flags substantial ones.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

func (s Sensitivity) String() string { return string(s) }

// ParseSensitivity converts a stored string back into a Sensitivity.
func ParseSensitivity(s string) (Sensitivity, error) {
	switch Sensitivity(s) {
	case SensitivityLow, SensitivityMedium, SensitivityHigh:
		return Sensitivity(s), nil
	}
	return "", fmt.Errorf("unknown sensitivity %q", s)
}

// OverrideAction is what an override rule does with a matching conflict.
type OverrideAction string

const (
	OverrideForceLocal  OverrideAction = "force_local"
	OverrideForceRemote OverrideAction = "force_remote"
	OverrideSkip        OverrideAction = "skip"
	OverrideCustomMerge OverrideAction = "custom_merge"
)

func (a OverrideAction) String() string { return string(a) }

// ParseOverrideAction converts a stored string back into an OverrideAction.
func ParseOverrideAction(s string) (OverrideAction, error) {
	switch OverrideAction(s) {
	case OverrideForceLocal, OverrideForceRemote, OverrideSkip, OverrideCustomMerge:
		return OverrideAction(s), nil
	}
	return "", fmt.Errorf("unknown override action %q", s)
}

// ResourceKind classifies the operation an embedder is reporting for a
// resource. Resources themselves are owned by the embedding application;
// the engine stores only their ids.
type ResourceKind string

const (
	ResourceEdit   ResourceKind = "edit"
	ResourceDelete ResourceKind = "delete"
	ResourceCreate ResourceKind = "create"
)

func (k ResourceKind) String() string { return string(k) }

// ParseResourceKind converts a stored string back into a ResourceKind.
func ParseResourceKind(s string) (ResourceKind, error) {
	switch ResourceKind(s) {
	case ResourceEdit, ResourceDelete, ResourceCreate:
		return ResourceKind(s), nil
	}
	return "", fmt.Errorf("unknown resource kind %q", s)
}

// ResolvedBy records which path produced a resolution.
type ResolvedBy string

const (
	ResolvedByRule     ResolvedBy = "rule"
	ResolvedByManual   ResolvedBy = "manual"
	ResolvedByOverride ResolvedBy = "override"
)

func (r ResolvedBy) String() string { return string(r) }
