// Package conflicts persists the conflict/outcome log.
package conflicts

import (
	"context"

	"github.com/driftguard/driftguard/internal/models"
)

// Filter narrows List results. Nil/empty fields match everything.
type Filter struct {
	Status   *models.ConflictStatus
	Category string
}

// Repository is the storage contract for conflict records and their
// resolution outcomes. A terminal conflict has exactly one outcome.
type Repository interface {
	Insert(ctx context.Context, c *models.ConflictRecord) error

	// Get returns the conflict by id, or common.ErrNotFound.
	Get(ctx context.Context, conflictID string) (*models.ConflictRecord, error)

	List(ctx context.Context, f Filter) ([]*models.ConflictRecord, error)

	// UpdateStatus transitions a conflict from one status to another. It
	// returns common.ErrConflictTerminal when the row is not currently in
	// the from status (lost race or already terminal), common.ErrNotFound
	// for unknown ids.
	UpdateStatus(ctx context.Context, conflictID string, from, to models.ConflictStatus) error

	// ActiveForResource returns the non-terminal conflict for a resource,
	// or common.ErrNotFound. At most one can exist at any time.
	ActiveForResource(ctx context.Context, resourceID string) (*models.ConflictRecord, error)

	// CountActive returns the number of non-terminal conflicts.
	CountActive(ctx context.Context) (int, error)

	InsertOutcome(ctx context.Context, o *models.ResolutionOutcome) error

	// GetOutcome returns the outcome for a conflict, or common.ErrNotFound.
	GetOutcome(ctx context.Context, conflictID string) (*models.ResolutionOutcome, error)

	// LatestOutcomeForResource returns the most recent outcome recorded
	// for any conflict of the resource, or common.ErrNotFound. The
	// detector uses it to tell reconciled divergence from new divergence.
	LatestOutcomeForResource(ctx context.Context, resourceID string) (*models.ResolutionOutcome, error)
}
