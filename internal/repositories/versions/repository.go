// Package versions persists the append-only, per-resource version log.
package versions

import (
	"context"

	"github.com/driftguard/driftguard/internal/models"
)

// Repository is the storage contract for the version log. Entries are
// immutable once appended; Append assigns the per-resource Seq.
type Repository interface {
	// Append stores v and fills in v.Seq with the next per-resource
	// sequence number. The write is atomic per resource.
	Append(ctx context.Context, v *models.Version) error

	// Get returns the version by id, or common.ErrNotFound.
	Get(ctx context.Context, versionID string) (*models.Version, error)

	// History returns all versions of a resource, newest first.
	History(ctx context.Context, resourceID string) ([]*models.Version, error)

	// LatestByOrigin returns the newest version of a resource with the
	// given origin, or common.ErrNotFound when none exists.
	LatestByOrigin(ctx context.Context, resourceID string, origin models.Origin) (*models.Version, error)

	// LatestBefore returns the newest version of a resource with Seq
	// strictly below seq, or common.ErrNotFound. Used to locate the common
	// ancestor of two divergent heads.
	LatestBefore(ctx context.Context, resourceID string, seq int64) (*models.Version, error)

	// Resources lists all resource ids present in the log.
	Resources(ctx context.Context) ([]string, error)
}
