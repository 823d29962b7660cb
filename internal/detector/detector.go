// Package detector finds divergence between the local and remote heads of a
// resource and records it as a conflict.
package detector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/diff"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	"github.com/driftguard/driftguard/internal/repositories/rules"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

// Detector scans resources for divergence between their local-origin and
// remote-origin heads. Concurrent scans of the same resource are coalesced;
// a resource has at most one active conflict at any time.
type Detector struct {
	versions  versions.Repository
	conflicts conflicts.Repository
	rules     rules.Repository
	diff      *diff.Engine
	logger    logging.Logger

	// ResolvePath maps a resource id to its human-meaningful path, used
	// for category classification and override matching. Defaults to the
	// identity mapping.
	ResolvePath func(resourceID string) string

	group singleflight.Group
}

func New(v versions.Repository, c conflicts.Repository, r rules.Repository, engine *diff.Engine, logger logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Detector{
		versions:  v,
		conflicts: c,
		rules:     r,
		diff:      engine,
		logger:    logger.With("module", "detector"),
	}
}

// Scan checks one resource. It returns the detected conflict, the already
// active one if a previous scan left a non-terminal conflict behind, or nil
// when the resource has no divergence worth recording.
//
// Concurrent Scan calls for the same resource share a single execution.
func (d *Detector) Scan(ctx context.Context, resourceID string) (*models.ConflictRecord, error) {
	v, err, _ := d.group.Do(resourceID, func() (any, error) {
		return d.scan(ctx, resourceID)
	})
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*models.ConflictRecord)
	return rec, nil
}

func (d *Detector) scan(ctx context.Context, resourceID string) (*models.ConflictRecord, error) {
	local, err := d.versions.LatestByOrigin(ctx, resourceID, models.OriginLocal)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}
	remote, err := d.versions.LatestByOrigin(ctx, resourceID, models.OriginRemote)
	if errors.Is(err, common.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}
	if bytes.Equal(local.Payload, remote.Payload) {
		return nil, nil
	}

	// A later merge-origin version supersedes both heads: the divergence
	// has already been reconciled.
	if merged, err := d.versions.LatestByOrigin(ctx, resourceID, models.OriginMerge); err == nil {
		if merged.Seq > local.Seq && merged.Seq > remote.Seq {
			return nil, nil
		}
	}

	// A use-local/use-remote resolution appends a version carrying the
	// winning side's origin, so it becomes one of the heads itself. The
	// divergence counts as reconciled until a newer version on either
	// side arrives.
	if out, err := d.conflicts.LatestOutcomeForResource(ctx, resourceID); err == nil {
		if res, verr := d.versions.Get(ctx, out.ResultingVersionID); verr == nil {
			if res.Seq >= local.Seq && res.Seq >= remote.Seq {
				return nil, nil
			}
		}
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}

	if active, err := d.conflicts.ActiveForResource(ctx, resourceID); err == nil {
		return active, nil
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}

	head, err := d.diff.Diff(remote.Payload, local.Payload)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}
	score := diff.Score(head, remote.Payload, local.Payload)
	if score == 0 {
		return nil, nil
	}

	path := resourceID
	if d.ResolvePath != nil {
		path = d.ResolvePath(resourceID)
	}
	category := Classify(path)

	sensitivity, err := d.sensitivityFor(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}
	if score < Threshold(sensitivity) {
		d.logger.Debug(ctx, "divergence below threshold",
			"resource_id", resourceID, "score", score, "sensitivity", sensitivity.String())
		return nil, nil
	}

	rec := &models.ConflictRecord{
		ID:              uuid.NewString(),
		ResourceID:      resourceID,
		ResourcePath:    path,
		Category:        category,
		Score:           score,
		LocalVersionID:  local.ID,
		RemoteVersionID: remote.ID,
		Status:          models.StatusDetected,
		DetectedAt:      time.Now().UTC(),
	}

	// Attribute changes per side against the common ancestor when one
	// exists; otherwise fall back to a direct head-to-head comparison
	// attributed entirely to the local side.
	base, err := d.baseVersion(ctx, resourceID, local.Seq, remote.Seq)
	switch {
	case err == nil:
		localRes, derr := d.diff.Diff(base.Payload, local.Payload)
		if derr != nil {
			return nil, fmt.Errorf("scan %s: %w", resourceID, derr)
		}
		remoteRes, derr := d.diff.Diff(base.Payload, remote.Payload)
		if derr != nil {
			return nil, fmt.Errorf("scan %s: %w", resourceID, derr)
		}
		rec.BaseVersionID = base.ID
		rec.LocalChanges = localRes.NewChanges
		rec.RemoteChanges = remoteRes.NewChanges
	case errors.Is(err, common.ErrNotFound):
		rec.LocalChanges = head.NewChanges
		rec.RemoteChanges = head.OldChanges
	default:
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}

	if err := d.conflicts.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("scan %s: %w", resourceID, err)
	}
	d.logger.Info(ctx, "conflict detected",
		"resource_id", resourceID, "conflict_id", rec.ID,
		"category", category, "score", score)
	return rec, nil
}

// baseVersion locates the newest common ancestor: the latest version below
// both heads' sequence numbers.
func (d *Detector) baseVersion(ctx context.Context, resourceID string, localSeq, remoteSeq int64) (*models.Version, error) {
	seq := localSeq
	if remoteSeq < seq {
		seq = remoteSeq
	}
	return d.versions.LatestBefore(ctx, resourceID, seq)
}

// sensitivityFor returns the sensitivity of the first enabled resolution
// rule matching the category. Without a matching rule every divergence is
// reported (high).
func (d *Detector) sensitivityFor(ctx context.Context, category string) (models.Sensitivity, error) {
	list, err := d.rules.ListResolution(ctx)
	if err != nil {
		return "", err
	}
	for _, r := range list {
		if !r.Enabled {
			continue
		}
		if r.CategoryMatch == "*" || r.CategoryMatch == category {
			return r.Sensitivity, nil
		}
	}
	return models.SensitivityHigh, nil
}

// ScanAll scans every known resource concurrently. Per-resource failures
// are logged and skipped; only context cancellation aborts the sweep.
func (d *Detector) ScanAll(ctx context.Context) ([]*models.ConflictRecord, error) {
	ids, err := d.versions.Resources(ctx)
	if err != nil {
		return nil, fmt.Errorf("scan all: %w", err)
	}

	var mu sync.Mutex
	var found []*models.ConflictRecord

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rec, err := d.Scan(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				d.logger.Warn(ctx, "scan failed", "resource_id", id, "error", err)
				return nil
			}
			if rec != nil {
				mu.Lock()
				found = append(found, rec)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return found, nil
}

// RunLoop scans all resources on a fixed interval until the context is
// cancelled. Suitable as a daemon goroutine.
func (d *Detector) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.logger.Info(ctx, "detector loop started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "detector loop stopped")
			return
		case <-ticker.C:
			if _, err := d.ScanAll(ctx); err != nil && !errors.Is(err, context.Canceled) {
				d.logger.Error(ctx, "scan sweep failed", "error", err)
			}
		}
	}
}

// Threshold maps a sensitivity to the minimum divergence score that is
// recorded as a conflict. High reports any divergence at all.
func Threshold(s models.Sensitivity) float64 {
	switch s {
	case models.SensitivityLow:
		return 0.5
	case models.SensitivityMedium:
		return 0.25
	default:
		return 0
	}
}
