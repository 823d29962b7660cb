// Package versionstore exposes the append-only version history of synced
// resources: append, history, restore and pairwise comparison.
package versionstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/diff"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

// Observer is notified after a version has been committed. Used by the
// sync-status surface for pending-count bookkeeping and by the event feed.
type Observer interface {
	VersionAppended(ctx context.Context, v *models.Version)
}

// Store is the VersionStore service. Entries are immutable and ordered per
// resource; restore never rewrites history.
type Store struct {
	repo      versions.Repository
	diff      *diff.Engine
	logger    logging.Logger
	observers []Observer
}

func NewStore(repo versions.Repository, engine *diff.Engine, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		repo:   repo,
		diff:   engine,
		logger: logger.With("module", "versionstore"),
	}
}

// AddObserver registers an observer. Not safe to call concurrently with
// Append; register observers during wiring.
func (s *Store) AddObserver(o Observer) {
	s.observers = append(s.observers, o)
}

// Append validates and stores a new snapshot, assigning its id, sequence
// and change count (relative to the previous snapshot of the resource).
// An empty payload is rejected with common.ErrEmptyPayload unless the
// version's origin is merge.
func (s *Store) Append(ctx context.Context, v *models.Version) (*models.Version, error) {
	if len(v.Payload) == 0 && v.Origin != models.OriginMerge {
		return nil, fmt.Errorf("append %s: %w", v.ResourceID, common.ErrEmptyPayload)
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	if prev, err := s.latest(ctx, v.ResourceID); err == nil {
		if res, derr := s.diff.Diff(prev.Payload, v.Payload); derr == nil {
			v.ChangeCount = len(res.Combined())
		}
	}

	if err := s.repo.Append(ctx, v); err != nil {
		return nil, fmt.Errorf("append %s: %w", v.ResourceID, err)
	}

	s.logger.Debug(ctx, "version appended",
		"resource_id", v.ResourceID, "version_id", v.ID, "origin", v.Origin.String(), "seq", v.Seq)

	s.NotifyAppended(ctx, v)
	return v, nil
}

// NotifyAppended delivers an append notification for a version committed
// outside the store, such as a resolution append written inside the
// coordinator's transaction. Call it only after the commit.
func (s *Store) NotifyAppended(ctx context.Context, v *models.Version) {
	for _, o := range s.observers {
		o.VersionAppended(ctx, v)
	}
}

// History returns all versions of a resource, newest first.
func (s *Store) History(ctx context.Context, resourceID string) ([]*models.Version, error) {
	return s.repo.History(ctx, resourceID)
}

// Get returns a version by id.
func (s *Store) Get(ctx context.Context, versionID string) (*models.Version, error) {
	return s.repo.Get(ctx, versionID)
}

// Restore appends a new version whose payload copies the target version.
// The new version carries origin merge; prior history stays intact.
func (s *Store) Restore(ctx context.Context, resourceID, versionID string) (*models.Version, error) {
	target, err := s.repo.Get(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("restore %s: %w", versionID, err)
	}
	if target.ResourceID != resourceID {
		return nil, fmt.Errorf("restore %s: version belongs to %s: %w", versionID, target.ResourceID, common.ErrNotFound)
	}

	restored := &models.Version{
		ResourceID: resourceID,
		Author:     target.Author,
		Origin:     models.OriginMerge,
		Payload:    append([]byte(nil), target.Payload...),
	}
	v, err := s.Append(ctx, restored)
	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "version restored",
		"resource_id", resourceID, "source_version_id", versionID, "new_version_id", v.ID)
	return v, nil
}

// Compare diffs two stored versions; both must belong to the same resource.
func (s *Store) Compare(ctx context.Context, versionIDA, versionIDB string) ([]models.DiffChange, error) {
	a, err := s.repo.Get(ctx, versionIDA)
	if err != nil {
		return nil, fmt.Errorf("compare %s: %w", versionIDA, err)
	}
	b, err := s.repo.Get(ctx, versionIDB)
	if err != nil {
		return nil, fmt.Errorf("compare %s: %w", versionIDB, err)
	}
	if a.ResourceID != b.ResourceID {
		return nil, fmt.Errorf("compare: versions belong to different resources: %w", common.ErrNotFound)
	}
	res, err := s.diff.Diff(a.Payload, b.Payload)
	if err != nil {
		return nil, err
	}
	return res.Combined(), nil
}

// Latest returns the newest version of a resource regardless of origin.
func (s *Store) Latest(ctx context.Context, resourceID string) (*models.Version, error) {
	return s.latest(ctx, resourceID)
}

func (s *Store) latest(ctx context.Context, resourceID string) (*models.Version, error) {
	history, err := s.repo.History(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, common.ErrNotFound
	}
	return history[0], nil
}
