package models

// ResolutionRule configures detection sensitivity and automatic resolution
// for a category of conflicts. Rules are evaluated in Position order; the
// first enabled rule whose CategoryMatch matches governs.
type ResolutionRule struct {
	ID   string
	Name string

	// CategoryMatch is an exact category tag, or "*" to match any.
	CategoryMatch string

	Enabled bool

	// Sensitivity sets the divergence threshold for this category.
	Sensitivity Sensitivity

	// AutoResolve allows the engine to resolve matching conflicts without
	// review, using Strategy (or the category default when empty).
	AutoResolve bool

	// Strategy overrides the per-category default strategy. Empty means
	// "use the default convention".
	Strategy Strategy

	// Position is the evaluation order, lowest first.
	Position int
}

// OverrideCondition is a pure, data-only predicate over the resource path
// and conflict metadata. All set fields must match.
type OverrideCondition struct {
	// PathPattern is a path.Match glob over the resource path. Empty
	// matches any path.
	PathPattern string

	// Category, when set, must equal the conflict's category.
	Category string

	// MinScore, when > 0, requires the conflict's divergence score to be
	// at least this value.
	MinScore float64
}

// OverrideRule is a user-defined condition/action pair that preempts
// standard rule evaluation when override mode is enabled.
type OverrideRule struct {
	ID        string
	Name      string
	Condition OverrideCondition
	Action    OverrideAction

	// Procedure is the compiled WASM merge procedure for CustomMerge
	// actions. Ignored for other actions.
	Procedure []byte

	Enabled  bool
	Position int
}
