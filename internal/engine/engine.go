// Package engine is the embeddable surface of the conflict/version engine.
// It wires the version store, detector, rule evaluation, overrides and the
// resolution coordinator behind one facade.
package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/coordinator"
	"github.com/driftguard/driftguard/internal/detector"
	"github.com/driftguard/driftguard/internal/diff"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
	"github.com/driftguard/driftguard/internal/override"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	"github.com/driftguard/driftguard/internal/repositories/repomanager"
	ruleeval "github.com/driftguard/driftguard/internal/rules"
	"github.com/driftguard/driftguard/internal/versionstore"
)

// Transport reports connectivity to the remote side. Remote snapshots are
// delivered by the host application through ApplyRemote; the engine itself
// never talks to the network.
type Transport interface {
	Online() bool
}

// Status is the synchronization snapshot returned by GetSyncStatus.
type Status struct {
	Online       bool
	PendingCount int
}

// EventKind enumerates the engine's event feed.
type EventKind string

const (
	EventVersionAppended  EventKind = "version_appended"
	EventConflictDetected EventKind = "conflict_detected"
	EventConflictResolved EventKind = "conflict_resolved"
)

// Event is a non-blocking notification about engine activity. The feed is
// lossy: when the buffer is full the oldest event is dropped.
type Event struct {
	Kind       EventKind
	ResourceID string
	ConflictID string
	VersionID  string
	At         time.Time
}

const eventBuffer = 128

// Engine is the facade over the whole conflict/version pipeline.
type Engine struct {
	db        *sql.DB
	manager   repomanager.RepositoryManager
	store     *versionstore.Store
	detector  *detector.Detector
	rules     *ruleeval.Engine
	sandbox   *override.Sandbox
	coord     *coordinator.Coordinator
	transport Transport
	logger    logging.Logger

	events chan Event
}

// Options tweak engine construction.
type Options struct {
	// SandboxTimeout bounds custom merge procedures. Zero means the
	// sandbox default.
	SandboxTimeout time.Duration

	// ResolvePath maps resource ids to human-meaningful paths for
	// classification and override matching.
	ResolvePath func(resourceID string) string
}

// New wires an engine over the given storage. db may be nil for in-memory
// storage; transport may be nil, meaning always online.
func New(db *sql.DB, manager repomanager.RepositoryManager, transport Transport, logger logging.Logger, opts Options) *Engine {
	if logger == nil {
		logger = logging.Nop()
	}
	diffEngine := diff.NewEngine()

	e := &Engine{
		db:        db,
		manager:   manager,
		rules:     ruleeval.NewEngine(),
		sandbox:   override.NewSandbox(opts.SandboxTimeout, logger),
		transport: transport,
		logger:    logger.With("module", "engine"),
		events:    make(chan Event, eventBuffer),
	}
	e.store = versionstore.NewStore(manager.Versions(db), diffEngine, logger)
	e.store.AddObserver(e)
	e.detector = detector.New(manager.Versions(db), manager.Conflicts(db), manager.Rules(db), diffEngine, logger)
	e.detector.ResolvePath = opts.ResolvePath
	e.coord = coordinator.New(db, manager, diffEngine, logger)
	e.coord.OnVersionAppended = e.store.NotifyAppended
	e.coord.OnResolved = func(ctx context.Context, c *models.ConflictRecord, o *models.ResolutionOutcome) {
		e.publish(Event{
			Kind:       EventConflictResolved,
			ResourceID: c.ResourceID,
			ConflictID: c.ID,
			VersionID:  o.ResultingVersionID,
			At:         time.Now().UTC(),
		})
	}
	return e
}

// Events returns the engine's event feed. The channel is never closed.
func (e *Engine) Events() <-chan Event { return e.events }

// VersionAppended implements versionstore.Observer.
func (e *Engine) VersionAppended(ctx context.Context, v *models.Version) {
	e.publish(Event{
		Kind:       EventVersionAppended,
		ResourceID: v.ResourceID,
		VersionID:  v.ID,
		At:         time.Now().UTC(),
	})
}

func (e *Engine) publish(ev Event) {
	for {
		select {
		case e.events <- ev:
			return
		default:
			// full: drop the oldest and retry
			select {
			case <-e.events:
			default:
			}
		}
	}
}

func (e *Engine) online() bool {
	return e.transport == nil || e.transport.Online()
}

// GetSyncStatus reports connectivity and the number of conflicts still
// awaiting resolution.
func (e *Engine) GetSyncStatus(ctx context.Context) (Status, error) {
	pending, err := e.manager.Conflicts(e.db).CountActive(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("sync status: %w", err)
	}
	return Status{Online: e.online(), PendingCount: pending}, nil
}

// RecordLocal appends a local-origin snapshot of a resource and scans it
// for divergence.
func (e *Engine) RecordLocal(ctx context.Context, resourceID, author string, payload []byte) (*models.Version, error) {
	return e.apply(ctx, resourceID, author, payload, models.OriginLocal)
}

// ApplyRemote appends a remote-origin snapshot delivered by the transport
// and scans the resource for divergence.
func (e *Engine) ApplyRemote(ctx context.Context, resourceID, author string, payload []byte) (*models.Version, error) {
	return e.apply(ctx, resourceID, author, payload, models.OriginRemote)
}

func (e *Engine) apply(ctx context.Context, resourceID, author string, payload []byte, origin models.Origin) (*models.Version, error) {
	v, err := e.store.Append(ctx, &models.Version{
		ResourceID: resourceID,
		Author:     author,
		Origin:     origin,
		Payload:    payload,
	})
	if err != nil {
		return nil, err
	}
	if rec, err := e.detector.Scan(ctx, resourceID); err != nil {
		e.logger.Warn(ctx, "post-append scan failed", "resource_id", resourceID, "error", err)
	} else if rec != nil {
		e.publishDetected(rec)
	}
	return v, nil
}

func (e *Engine) publishDetected(rec *models.ConflictRecord) {
	e.publish(Event{
		Kind:       EventConflictDetected,
		ResourceID: rec.ResourceID,
		ConflictID: rec.ID,
		At:         time.Now().UTC(),
	})
}

// ForceSync scans for divergence and runs the resolution pipeline on every
// detected conflict: overrides first, then resolution rules; whatever
// neither handles stays for manual review. An empty resourceID means all
// resources. Fails fast with common.ErrOffline when the transport is down.
func (e *Engine) ForceSync(ctx context.Context, resourceID string) error {
	if !e.online() {
		return fmt.Errorf("force sync: %w", common.ErrOffline)
	}

	var recs []*models.ConflictRecord
	if resourceID == "" {
		all, err := e.detector.ScanAll(ctx)
		if err != nil {
			return fmt.Errorf("force sync: %w", err)
		}
		recs = all
	} else {
		rec, err := e.detector.Scan(ctx, resourceID)
		if err != nil {
			return fmt.Errorf("force sync: %w", err)
		}
		if rec != nil {
			recs = append(recs, rec)
		}
	}

	for _, rec := range recs {
		if rec.Status.Terminal() {
			continue
		}
		e.publishDetected(rec)
		if err := e.dispatch(ctx, rec); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			e.logger.Warn(ctx, "conflict left for review",
				"conflict_id", rec.ID, "resource_id", rec.ResourceID, "error", err)
		}
	}
	return nil
}

// dispatch runs one conflict through overrides, then rules.
func (e *Engine) dispatch(ctx context.Context, rec *models.ConflictRecord) error {
	overrides, err := e.manager.Rules(e.db).ListOverride(ctx)
	if err != nil {
		return err
	}
	if rule, ok := override.Match(rec, overrides); ok {
		return e.applyOverride(ctx, rec, rule)
	}

	resolution, err := e.manager.Rules(e.db).ListResolution(ctx)
	if err != nil {
		return err
	}
	decision := e.rules.Evaluate(rec, resolution)
	if decision.Kind != ruleeval.AutoResolve {
		e.logger.Info(ctx, "conflict requires review",
			"conflict_id", rec.ID, "reason", decision.Reason)
		return nil
	}

	_, err = e.coord.Resolve(ctx, rec.ID, decision.Strategy, models.ResolvedByRule)
	if errors.Is(err, common.ErrRequiresManualMerge) {
		// already moved to review by the coordinator
		return nil
	}
	return err
}

func (e *Engine) applyOverride(ctx context.Context, rec *models.ConflictRecord, rule *models.OverrideRule) error {
	e.logger.Info(ctx, "override rule applies",
		"conflict_id", rec.ID, "rule_id", rule.ID, "action", rule.Action.String())

	switch rule.Action {
	case models.OverrideForceLocal:
		_, err := e.coord.Resolve(ctx, rec.ID, models.StrategyLocal, models.ResolvedByOverride)
		return err
	case models.OverrideForceRemote:
		_, err := e.coord.Resolve(ctx, rec.ID, models.StrategyRemote, models.ResolvedByOverride)
		return err
	case models.OverrideSkip:
		_, err := e.coord.Skip(ctx, rec.ID, models.ResolvedByOverride)
		return err
	case models.OverrideCustomMerge:
		return e.customMerge(ctx, rec, rule)
	default:
		return fmt.Errorf("override rule %s: unknown action %q", rule.ID, rule.Action)
	}
}

// customMerge runs the rule's sandboxed procedure over both heads. Any
// sandbox failure sends the conflict to review instead of trusting a
// partial result.
func (e *Engine) customMerge(ctx context.Context, rec *models.ConflictRecord, rule *models.OverrideRule) error {
	vrepo := e.manager.Versions(e.db)
	local, err := vrepo.Get(ctx, rec.LocalVersionID)
	if err != nil {
		return err
	}
	remote, err := vrepo.Get(ctx, rec.RemoteVersionID)
	if err != nil {
		return err
	}

	hdr := override.Header{
		ConflictID:   rec.ID,
		ResourcePath: rec.ResourcePath,
		Category:     rec.Category,
		Score:        rec.Score,
	}
	merged, err := e.sandbox.Merge(ctx, rule.Procedure, hdr, local.Payload, remote.Payload)
	if err != nil {
		e.logger.Warn(ctx, "custom merge failed, conflict goes to review",
			"conflict_id", rec.ID, "rule_id", rule.ID, "error", err)
		if rerr := e.coord.MarkUnderReview(ctx, rec.ID); rerr != nil && !errors.Is(rerr, common.ErrConflictTerminal) {
			return rerr
		}
		return nil
	}

	_, err = e.coord.ResolveWithPayload(ctx, rec.ID, merged, models.ResolvedByOverride)
	return err
}

// ListConflicts returns conflicts matching the filter.
func (e *Engine) ListConflicts(ctx context.Context, f conflicts.Filter) ([]*models.ConflictRecord, error) {
	return e.manager.Conflicts(e.db).List(ctx, f)
}

// GetConflict returns one conflict by id.
func (e *Engine) GetConflict(ctx context.Context, conflictID string) (*models.ConflictRecord, error) {
	return e.manager.Conflicts(e.db).Get(ctx, conflictID)
}

// ResolveConflict applies a strategy chosen by a person.
func (e *Engine) ResolveConflict(ctx context.Context, conflictID string, strategy models.Strategy) (*models.ResolutionOutcome, error) {
	return e.coord.Resolve(ctx, conflictID, strategy, models.ResolvedByManual)
}

// MarkUnderReview flags a conflict as being inspected.
func (e *Engine) MarkUnderReview(ctx context.Context, conflictID string) error {
	return e.coord.MarkUnderReview(ctx, conflictID)
}

// GetHistory returns the version log of a resource, newest first.
func (e *Engine) GetHistory(ctx context.Context, resourceID string) ([]*models.Version, error) {
	return e.store.History(ctx, resourceID)
}

// RestoreVersion re-applies an old version as a new head.
func (e *Engine) RestoreVersion(ctx context.Context, resourceID, versionID string) (*models.Version, error) {
	return e.store.Restore(ctx, resourceID, versionID)
}

// CompareVersions diffs two stored versions of the same resource.
func (e *Engine) CompareVersions(ctx context.Context, versionIDA, versionIDB string) ([]models.DiffChange, error) {
	return e.store.Compare(ctx, versionIDA, versionIDB)
}

// Scan checks one resource for divergence without resolving anything.
func (e *Engine) Scan(ctx context.Context, resourceID string) (*models.ConflictRecord, error) {
	return e.detector.Scan(ctx, resourceID)
}

// Detector exposes the detector for daemon loops.
func (e *Engine) Detector() *detector.Detector { return e.detector }

// UpsertResolutionRule validates and stores a resolution rule.
func (e *Engine) UpsertResolutionRule(ctx context.Context, rule *models.ResolutionRule) error {
	if err := ruleeval.Validate(rule); err != nil {
		return err
	}
	return e.manager.Rules(e.db).UpsertResolution(ctx, rule)
}

// UpsertOverrideRule validates and stores an override rule.
func (e *Engine) UpsertOverrideRule(ctx context.Context, rule *models.OverrideRule) error {
	if _, err := models.ParseOverrideAction(rule.Action.String()); err != nil {
		return fmt.Errorf("action %q: %w", rule.Action, common.ErrInvalidRule)
	}
	if rule.Action == models.OverrideCustomMerge && len(rule.Procedure) == 0 {
		return fmt.Errorf("custom merge rule without procedure: %w", common.ErrInvalidRule)
	}
	return e.manager.Rules(e.db).UpsertOverride(ctx, rule)
}

// ListResolutionRules returns all resolution rules in evaluation order.
func (e *Engine) ListResolutionRules(ctx context.Context) ([]*models.ResolutionRule, error) {
	return e.manager.Rules(e.db).ListResolution(ctx)
}

// ListOverrideRules returns all override rules in evaluation order.
func (e *Engine) ListOverrideRules(ctx context.Context) ([]*models.OverrideRule, error) {
	return e.manager.Rules(e.db).ListOverride(ctx)
}

// DeleteResolutionRule removes a resolution rule.
func (e *Engine) DeleteResolutionRule(ctx context.Context, ruleID string) error {
	return e.manager.Rules(e.db).DeleteResolution(ctx, ruleID)
}

// DeleteOverrideRule removes an override rule.
func (e *Engine) DeleteOverrideRule(ctx context.Context, ruleID string) error {
	return e.manager.Rules(e.db).DeleteOverride(ctx, ruleID)
}
