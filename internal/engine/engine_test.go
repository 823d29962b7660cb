package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	"github.com/driftguard/driftguard/internal/repositories/repomanager"
)

type staticTransport struct{ online bool }

func (t staticTransport) Online() bool { return t.online }

func newTestEngine(t *testing.T, online bool) *Engine {
	t.Helper()
	return New(nil, repomanager.NewMemoryRepositoryManager(), staticTransport{online}, logging.Nop(), Options{})
}

func seedConflict(t *testing.T, e *Engine, resourceID string) *models.ConflictRecord {
	t.Helper()
	ctx := context.Background()
	_, err := e.RecordLocal(ctx, resourceID, "alice", []byte("shared\n"))
	require.NoError(t, err)
	_, err = e.RecordLocal(ctx, resourceID, "alice", []byte("shared\nlocal edit\n"))
	require.NoError(t, err)
	_, err = e.ApplyRemote(ctx, resourceID, "bob", []byte("shared\nremote edit\n"))
	require.NoError(t, err)

	list, err := e.ListConflicts(ctx, conflicts.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestEngine_GetSyncStatus(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	st, err := e.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, st.Online)
	assert.Zero(t, st.PendingCount)

	seedConflict(t, e, "notes.md")

	st, err = e.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.PendingCount)
}

func TestEngine_GetSyncStatus_Offline(t *testing.T) {
	e := newTestEngine(t, false)

	st, err := e.GetSyncStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, st.Online)
}

func TestEngine_ForceSync_Offline(t *testing.T) {
	e := newTestEngine(t, false)

	err := e.ForceSync(context.Background(), "")
	assert.ErrorIs(t, err, common.ErrOffline)
}

func TestEngine_ApplyRemote_DetectsConflict(t *testing.T) {
	e := newTestEngine(t, true)
	rec := seedConflict(t, e, "notes.md")

	assert.Equal(t, models.StatusDetected, rec.Status)
	assert.Equal(t, "notes.md", rec.ResourceID)
}

func TestEngine_ForceSync_RuleAutoResolves(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	require.NoError(t, e.UpsertResolutionRule(ctx, &models.ResolutionRule{
		ID:            "r1",
		Name:          "prefer remote",
		CategoryMatch: "*",
		Enabled:       true,
		Sensitivity:   models.SensitivityHigh,
		AutoResolve:   true,
		Position:      1,
	}))
	rec := seedConflict(t, e, "notes.md")

	require.NoError(t, e.ForceSync(ctx, "notes.md"))

	got, err := e.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoResolved, got.Status)

	history, err := e.GetHistory(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("shared\nremote edit\n"), history[0].Payload)
	assert.Equal(t, models.OriginRemote, history[0].Origin)
}

func TestEngine_ForceSync_OverridePrecedesRules(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	// the rule says remote wins, the override says local wins
	require.NoError(t, e.UpsertResolutionRule(ctx, &models.ResolutionRule{
		ID: "r1", CategoryMatch: "*", Enabled: true,
		Sensitivity: models.SensitivityHigh, AutoResolve: true, Position: 1,
	}))
	require.NoError(t, e.UpsertOverrideRule(ctx, &models.OverrideRule{
		ID: "o1", Name: "keep my notes",
		Condition: models.OverrideCondition{PathPattern: "*.md"},
		Action:    models.OverrideForceLocal,
		Enabled:   true, Position: 1,
	}))
	rec := seedConflict(t, e, "notes.md")

	require.NoError(t, e.ForceSync(ctx, "notes.md"))

	got, err := e.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoResolved, got.Status)

	history, err := e.GetHistory(ctx, "notes.md")
	require.NoError(t, err)
	assert.Equal(t, []byte("shared\nlocal edit\n"), history[0].Payload)
	assert.Equal(t, models.OriginLocal, history[0].Origin)
}

func TestEngine_ForceSync_SkipOverride(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	require.NoError(t, e.UpsertOverrideRule(ctx, &models.OverrideRule{
		ID: "o1", Action: models.OverrideSkip, Enabled: true, Position: 1,
	}))
	rec := seedConflict(t, e, "notes.md")

	historyBefore, err := e.GetHistory(ctx, "notes.md")
	require.NoError(t, err)

	require.NoError(t, e.ForceSync(ctx, "notes.md"))

	got, err := e.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, got.Status)

	historyAfter, err := e.GetHistory(ctx, "notes.md")
	require.NoError(t, err)
	assert.Len(t, historyAfter, len(historyBefore))
}

func TestEngine_ForceSync_BrokenCustomMergeGoesToReview(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	require.NoError(t, e.UpsertOverrideRule(ctx, &models.OverrideRule{
		ID:        "o1",
		Action:    models.OverrideCustomMerge,
		Procedure: []byte("definitely not wasm"),
		Enabled:   true, Position: 1,
	}))
	rec := seedConflict(t, e, "notes.md")

	require.NoError(t, e.ForceSync(ctx, "notes.md"))

	got, err := e.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, got.Status)
}

func TestEngine_ForceSync_NoRulesLeavesConflictForReview(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	rec := seedConflict(t, e, "notes.md")

	require.NoError(t, e.ForceSync(ctx, ""))

	got, err := e.GetConflict(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDetected, got.Status)
}

func TestEngine_ResolveConflict_Manual(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	rec := seedConflict(t, e, "notes.md")

	outcome, err := e.ResolveConflict(ctx, rec.ID, models.StrategyLocal)
	require.NoError(t, err)
	assert.Equal(t, models.ResolvedByManual, outcome.ResolvedBy)

	st, err := e.GetSyncStatus(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.PendingCount)
}

func TestEngine_ResolveConflict_NotRedetected(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	rec := seedConflict(t, e, "notes.md")

	_, err := e.ResolveConflict(ctx, rec.ID, models.StrategyLocal)
	require.NoError(t, err)

	again, err := e.Scan(ctx, "notes.md")
	require.NoError(t, err)
	assert.Nil(t, again, "resolved divergence must not come back as a new conflict")

	require.NoError(t, e.ForceSync(ctx, "notes.md"))
	list, err := e.ListConflicts(ctx, conflicts.Filter{})
	require.NoError(t, err)
	assert.Len(t, list, 1, "only the original, resolved conflict should exist")

	history, err := e.GetHistory(ctx, "notes.md")
	require.NoError(t, err)
	assert.Len(t, history, 4, "exactly one resolving version appended")
}

func TestEngine_RestoreAndCompare(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	v1, err := e.RecordLocal(ctx, "notes.md", "alice", []byte("first\n"))
	require.NoError(t, err)
	v2, err := e.RecordLocal(ctx, "notes.md", "alice", []byte("second\n"))
	require.NoError(t, err)

	changes, err := e.CompareVersions(ctx, v1.ID, v2.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, changes)

	restored, err := e.RestoreVersion(ctx, "notes.md", v1.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("first\n"), restored.Payload)
	assert.Equal(t, models.OriginMerge, restored.Origin)
}

func TestEngine_Events(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	_, err := e.RecordLocal(ctx, "notes.md", "alice", []byte("a\n"))
	require.NoError(t, err)

	select {
	case ev := <-e.Events():
		assert.Equal(t, EventVersionAppended, ev.Kind)
		assert.Equal(t, "notes.md", ev.ResourceID)
	default:
		t.Fatal("expected a version_appended event")
	}
}

func TestEngine_Events_ConflictLifecycle(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()
	rec := seedConflict(t, e, "notes.md")

	// drain appends and the detection event
	kinds := map[EventKind]bool{}
	for {
		select {
		case ev := <-e.Events():
			kinds[ev.Kind] = true
			continue
		default:
		}
		break
	}
	assert.True(t, kinds[EventVersionAppended])
	assert.True(t, kinds[EventConflictDetected])

	_, err := e.ResolveConflict(ctx, rec.ID, models.StrategyRemote)
	require.NoError(t, err)

	resolved := false
	resolutionAppend := false
	for {
		select {
		case ev := <-e.Events():
			if ev.Kind == EventConflictResolved {
				resolved = true
			}
			if ev.Kind == EventVersionAppended {
				resolutionAppend = true
			}
			continue
		default:
		}
		break
	}
	assert.True(t, resolved)
	assert.True(t, resolutionAppend, "the resolving version must reach version observers")
}

func TestEngine_UpsertOverrideRule_Validation(t *testing.T) {
	e := newTestEngine(t, true)
	ctx := context.Background()

	err := e.UpsertOverrideRule(ctx, &models.OverrideRule{ID: "o1", Action: "explode"})
	assert.ErrorIs(t, err, common.ErrInvalidRule)

	err = e.UpsertOverrideRule(ctx, &models.OverrideRule{ID: "o2", Action: models.OverrideCustomMerge})
	assert.ErrorIs(t, err, common.ErrInvalidRule)
}

func TestEngine_UpsertResolutionRule_Validation(t *testing.T) {
	e := newTestEngine(t, true)

	err := e.UpsertResolutionRule(context.Background(), &models.ResolutionRule{ID: "r1", Sensitivity: models.SensitivityHigh})
	assert.ErrorIs(t, err, common.ErrInvalidRule)
}
