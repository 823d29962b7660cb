// Package coordinator applies resolution strategies to detected conflicts.
// Resolution of a resource is serialized; a terminal conflict is never
// resolved twice.
package coordinator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/diff"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	"github.com/driftguard/driftguard/internal/repositories/repomanager"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

// Coordinator turns a conflict plus a strategy into exactly one appended
// version and one recorded outcome, atomically.
type Coordinator struct {
	db      *sql.DB
	manager repomanager.RepositoryManager
	diff    *diff.Engine
	logger  logging.Logger

	// OnResolved is called after a conflict reaches a terminal status.
	// Optional; used by the engine's event feed.
	OnResolved func(ctx context.Context, c *models.ConflictRecord, o *models.ResolutionOutcome)

	// OnVersionAppended is called after a resolution commits its version,
	// so version-store observers see resolution appends too. Optional.
	OnVersionAppended func(ctx context.Context, v *models.Version)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New builds a coordinator. db may be nil when the repository manager is
// purely in-memory.
func New(db *sql.DB, manager repomanager.RepositoryManager, engine *diff.Engine, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Coordinator{
		db:      db,
		manager: manager,
		diff:    engine,
		logger:  logger.With("module", "coordinator"),
		locks:   map[string]*sync.Mutex{},
	}
}

func (c *Coordinator) resourceLock(resourceID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[resourceID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[resourceID] = l
	}
	return l
}

// withTx runs fn against transactional repositories, or directly against
// the shared repositories when no database is configured.
func (c *Coordinator) withTx(ctx context.Context, fn func(ctx context.Context, v versions.Repository, cf conflicts.Repository) error) error {
	if c.db == nil {
		return fn(ctx, c.manager.Versions(nil), c.manager.Conflicts(nil))
	}
	return dbx.WithTx(ctx, c.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, c.manager.Versions(tx), c.manager.Conflicts(tx))
	})
}

// Resolve applies a strategy to a conflict. Resolving an already terminal
// conflict returns its stored outcome unchanged. A second resolver racing
// on the same resource gets common.ErrConcurrentResolution immediately
// instead of blocking.
func (c *Coordinator) Resolve(ctx context.Context, conflictID string, strategy models.Strategy, resolvedBy models.ResolvedBy) (*models.ResolutionOutcome, error) {
	repo := c.manager.Conflicts(c.db)
	rec, err := repo.Get(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", conflictID, err)
	}
	if rec.Status.Terminal() {
		return repo.GetOutcome(ctx, conflictID)
	}

	lock := c.resourceLock(rec.ResourceID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("resolve %s: resource %s: %w", conflictID, rec.ResourceID, common.ErrConcurrentResolution)
	}
	defer lock.Unlock()

	local, err := c.manager.Versions(c.db).Get(ctx, rec.LocalVersionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: local version: %w", conflictID, err)
	}
	remote, err := c.manager.Versions(c.db).Get(ctx, rec.RemoteVersionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: remote version: %w", conflictID, err)
	}

	var payload []byte
	var origin models.Origin
	switch strategy {
	case models.StrategyLocal:
		payload, origin = local.Payload, models.OriginLocal
	case models.StrategyRemote:
		payload, origin = remote.Payload, models.OriginRemote
	case models.StrategyMerge:
		payload, err = c.merge(ctx, rec, local, remote)
		if errors.Is(err, common.ErrRequiresManualMerge) {
			c.toReview(ctx, rec)
			return nil, fmt.Errorf("resolve %s: %w", conflictID, err)
		}
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", conflictID, err)
		}
		origin = models.OriginMerge
	default:
		return nil, fmt.Errorf("resolve %s: unknown strategy %q", conflictID, strategy)
	}

	return c.finish(ctx, rec, strategy, resolvedBy, &models.Version{
		ID:         uuid.NewString(),
		ResourceID: rec.ResourceID,
		Author:     resolvedBy.String(),
		Origin:     origin,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  time.Now().UTC(),
	}, local)
}

// ResolveWithPayload records an externally produced payload (a sandboxed
// custom merge) as the resolution. The payload is appended as a merge-origin
// version.
func (c *Coordinator) ResolveWithPayload(ctx context.Context, conflictID string, payload []byte, resolvedBy models.ResolvedBy) (*models.ResolutionOutcome, error) {
	repo := c.manager.Conflicts(c.db)
	rec, err := repo.Get(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", conflictID, err)
	}
	if rec.Status.Terminal() {
		return repo.GetOutcome(ctx, conflictID)
	}

	lock := c.resourceLock(rec.ResourceID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("resolve %s: resource %s: %w", conflictID, rec.ResourceID, common.ErrConcurrentResolution)
	}
	defer lock.Unlock()

	local, err := c.manager.Versions(c.db).Get(ctx, rec.LocalVersionID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: local version: %w", conflictID, err)
	}

	return c.finish(ctx, rec, models.StrategyMerge, resolvedBy, &models.Version{
		ID:         uuid.NewString(),
		ResourceID: rec.ResourceID,
		Author:     resolvedBy.String(),
		Origin:     models.OriginMerge,
		Payload:    append([]byte(nil), payload...),
		CreatedAt:  time.Now().UTC(),
	}, local)
}

// Skip closes a conflict without appending a version: the local head stays
// in place and the conflict is marked skipped.
func (c *Coordinator) Skip(ctx context.Context, conflictID string, resolvedBy models.ResolvedBy) (*models.ResolutionOutcome, error) {
	repo := c.manager.Conflicts(c.db)
	rec, err := repo.Get(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("skip %s: %w", conflictID, err)
	}
	if rec.Status.Terminal() {
		return repo.GetOutcome(ctx, conflictID)
	}

	lock := c.resourceLock(rec.ResourceID)
	if !lock.TryLock() {
		return nil, fmt.Errorf("skip %s: resource %s: %w", conflictID, rec.ResourceID, common.ErrConcurrentResolution)
	}
	defer lock.Unlock()

	outcome := &models.ResolutionOutcome{
		ConflictID:         conflictID,
		Strategy:           models.StrategyLocal,
		ResultingVersionID: rec.LocalVersionID,
		ResolvedBy:         resolvedBy,
		ResolvedAt:         time.Now().UTC(),
	}
	err = c.withTx(ctx, func(ctx context.Context, _ versions.Repository, cf conflicts.Repository) error {
		if err := cf.UpdateStatus(ctx, conflictID, rec.Status, models.StatusSkipped); err != nil {
			return err
		}
		return cf.InsertOutcome(ctx, outcome)
	})
	if err != nil {
		return nil, fmt.Errorf("skip %s: %w", conflictID, err)
	}

	rec.Status = models.StatusSkipped
	c.logger.Info(ctx, "conflict skipped", "conflict_id", conflictID, "resource_id", rec.ResourceID)
	if c.OnResolved != nil {
		c.OnResolved(ctx, rec, outcome)
	}
	return outcome, nil
}

// MarkUnderReview flags a detected conflict as being inspected manually.
func (c *Coordinator) MarkUnderReview(ctx context.Context, conflictID string) error {
	err := c.manager.Conflicts(c.db).UpdateStatus(ctx, conflictID, models.StatusDetected, models.StatusUnderReview)
	if err != nil {
		return fmt.Errorf("mark under review %s: %w", conflictID, err)
	}
	return nil
}

// merge attempts a three-way merge against the conflict's recorded base.
// Without a base there is no ancestor to attribute changes to, so the
// merge refuses and the conflict goes to review.
func (c *Coordinator) merge(ctx context.Context, rec *models.ConflictRecord, local, remote *models.Version) ([]byte, error) {
	if rec.BaseVersionID == "" {
		return nil, fmt.Errorf("no common ancestor: %w", common.ErrRequiresManualMerge)
	}
	base, err := c.manager.Versions(c.db).Get(ctx, rec.BaseVersionID)
	if err != nil {
		return nil, fmt.Errorf("base version: %w", err)
	}
	localRes, err := c.diff.Diff(base.Payload, local.Payload)
	if err != nil {
		return nil, err
	}
	remoteRes, err := c.diff.Diff(base.Payload, remote.Payload)
	if err != nil {
		return nil, err
	}
	return diff.Merge(base.Payload, localRes, remoteRes)
}

// finish atomically appends the resolving version, transitions the conflict
// and records the outcome.
func (c *Coordinator) finish(ctx context.Context, rec *models.ConflictRecord, strategy models.Strategy, resolvedBy models.ResolvedBy, v *models.Version, localHead *models.Version) (*models.ResolutionOutcome, error) {
	target := models.StatusResolved
	if resolvedBy == models.ResolvedByRule || resolvedBy == models.ResolvedByOverride {
		target = models.StatusAutoResolved
	}

	if res, err := c.diff.Diff(localHead.Payload, v.Payload); err == nil {
		v.ChangeCount = len(res.Combined())
	}

	outcome := &models.ResolutionOutcome{
		ConflictID:         rec.ID,
		Strategy:           strategy,
		ResultingVersionID: v.ID,
		ResolvedBy:         resolvedBy,
		ResolvedAt:         time.Now().UTC(),
	}

	err := c.withTx(ctx, func(ctx context.Context, vr versions.Repository, cf conflicts.Repository) error {
		if err := cf.UpdateStatus(ctx, rec.ID, rec.Status, target); err != nil {
			return err
		}
		if err := vr.Append(ctx, v); err != nil {
			return err
		}
		return cf.InsertOutcome(ctx, outcome)
	})
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", rec.ID, err)
	}

	rec.Status = target
	c.logger.Info(ctx, "conflict resolved",
		"conflict_id", rec.ID, "resource_id", rec.ResourceID,
		"strategy", strategy.String(), "resolved_by", resolvedBy.String(),
		"version_id", v.ID)
	if c.OnVersionAppended != nil {
		c.OnVersionAppended(ctx, v)
	}
	if c.OnResolved != nil {
		c.OnResolved(ctx, rec, outcome)
	}
	return outcome, nil
}

// toReview moves a detected conflict to under review after a failed merge.
// Best effort: a lost race means someone else already moved it.
func (c *Coordinator) toReview(ctx context.Context, rec *models.ConflictRecord) {
	if rec.Status != models.StatusDetected {
		return
	}
	err := c.manager.Conflicts(c.db).UpdateStatus(ctx, rec.ID, models.StatusDetected, models.StatusUnderReview)
	if err != nil && !errors.Is(err, common.ErrConflictTerminal) {
		c.logger.Warn(ctx, "could not move conflict to review", "conflict_id", rec.ID, "error", err)
	}
}
