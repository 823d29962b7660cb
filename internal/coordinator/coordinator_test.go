package coordinator

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/detector"
	"github.com/driftguard/driftguard/internal/diff"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
	"github.com/driftguard/driftguard/internal/repositories/repomanager"
)

type fixture struct {
	manager *repomanager.MemoryRepositoryManager
	coord   *Coordinator
	det     *detector.Detector
}

func newFixture() *fixture {
	m := repomanager.NewMemoryRepositoryManager()
	engine := diff.NewEngine()
	return &fixture{
		manager: m,
		coord:   New(nil, m, engine, logging.Nop()),
		det:     detector.New(m.Versions(nil), m.Conflicts(nil), m.Rules(nil), engine, logging.Nop()),
	}
}

func (f *fixture) append(t *testing.T, resourceID string, origin models.Origin, payload string) *models.Version {
	t.Helper()
	v := &models.Version{
		ID:         uuid.NewString(),
		ResourceID: resourceID,
		Author:     "tester",
		Origin:     origin,
		Payload:    []byte(payload),
	}
	require.NoError(t, f.manager.Versions(nil).Append(context.Background(), v))
	return v
}

// detect writes diverging heads and runs a scan to produce a conflict.
func (f *fixture) detect(t *testing.T, resourceID, base, local, remote string) *models.ConflictRecord {
	t.Helper()
	if base != "" {
		f.append(t, resourceID, models.OriginLocal, base)
	}
	f.append(t, resourceID, models.OriginLocal, local)
	f.append(t, resourceID, models.OriginRemote, remote)
	rec, err := f.det.Scan(context.Background(), resourceID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec
}

func TestCoordinator_Resolve_RemoteStrategy(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	outcome, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyRemote, models.ResolvedByRule)
	require.NoError(t, err)

	assert.Equal(t, models.StrategyRemote, outcome.Strategy)
	assert.Equal(t, models.ResolvedByRule, outcome.ResolvedBy)

	v, err := f.manager.Versions(nil).Get(context.Background(), outcome.ResultingVersionID)
	require.NoError(t, err)
	assert.Equal(t, []byte("a\nremote\n"), v.Payload)
	assert.Equal(t, models.OriginRemote, v.Origin)

	got, err := f.manager.Conflicts(nil).Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoResolved, got.Status)
}

func TestCoordinator_Resolve_LocalStrategyManually(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	outcome, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyLocal, models.ResolvedByManual)
	require.NoError(t, err)

	v, err := f.manager.Versions(nil).Get(context.Background(), outcome.ResultingVersionID)
	require.NoError(t, err)
	assert.Equal(t, []byte("a\nlocal\n"), v.Payload)
	assert.Equal(t, models.OriginLocal, v.Origin)

	got, err := f.manager.Conflicts(nil).Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
}

func TestCoordinator_Resolve_Idempotent(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	before, err := f.manager.Versions(nil).History(context.Background(), "notes.md")
	require.NoError(t, err)

	first, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyRemote, models.ResolvedByManual)
	require.NoError(t, err)
	second, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyLocal, models.ResolvedByManual)
	require.NoError(t, err)

	// the stored outcome is returned unchanged, no matter the strategy
	assert.Equal(t, first.ResultingVersionID, second.ResultingVersionID)
	assert.Equal(t, first.Strategy, second.Strategy)

	after, err := f.manager.Versions(nil).History(context.Background(), "notes.md")
	require.NoError(t, err)
	assert.Len(t, after, len(before)+1)
}

func TestCoordinator_Resolve_ConcurrentResolutionRefused(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	lock := f.coord.resourceLock("notes.md")
	lock.Lock()
	defer lock.Unlock()

	_, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyRemote, models.ResolvedByManual)
	assert.ErrorIs(t, err, common.ErrConcurrentResolution)
}

func TestCoordinator_Resolve_MergeNonOverlapping(t *testing.T) {
	f := newFixture()
	base := "1\n2\n3\n4\n5\n6\n7\n8\n9\n"
	local := "1\n2\n3\n4\nlocal five\n5\n6\n7\n8\n9\n" // adds a line at position 5
	remote := "1\n2\n3\n4\n5\n6\n7\n8\n"               // removes line 9
	rec := f.detect(t, "notes.md", base, local, remote)
	require.NotEmpty(t, rec.BaseVersionID)

	outcome, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyMerge, models.ResolvedByManual)
	require.NoError(t, err)

	v, err := f.manager.Versions(nil).Get(context.Background(), outcome.ResultingVersionID)
	require.NoError(t, err)
	assert.Equal(t, []byte("1\n2\n3\n4\nlocal five\n5\n6\n7\n8\n"), v.Payload)
	assert.Equal(t, models.OriginMerge, v.Origin)
}

func TestCoordinator_Resolve_MergeOverlapGoesToReview(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "one\ntwo\n", "one\ntwo local\n", "one\ntwo remote\n")

	_, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyMerge, models.ResolvedByManual)
	assert.ErrorIs(t, err, common.ErrRequiresManualMerge)

	got, err := f.manager.Conflicts(nil).Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, got.Status)

	// no version was appended
	history, err := f.manager.Versions(nil).History(context.Background(), "notes.md")
	require.NoError(t, err)
	assert.Len(t, history, 3)
}

func TestCoordinator_Resolve_MergeWithoutBaseRefused(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "", "local\n", "remote\n")
	require.Empty(t, rec.BaseVersionID)

	_, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyMerge, models.ResolvedByManual)
	assert.ErrorIs(t, err, common.ErrRequiresManualMerge)
}

func TestCoordinator_ResolveWithPayload(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	outcome, err := f.coord.ResolveWithPayload(context.Background(), rec.ID, []byte("custom\n"), models.ResolvedByOverride)
	require.NoError(t, err)

	v, err := f.manager.Versions(nil).Get(context.Background(), outcome.ResultingVersionID)
	require.NoError(t, err)
	assert.Equal(t, []byte("custom\n"), v.Payload)
	assert.Equal(t, models.OriginMerge, v.Origin)

	got, err := f.manager.Conflicts(nil).Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAutoResolved, got.Status)
}

func TestCoordinator_Skip(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	before, err := f.manager.Versions(nil).History(context.Background(), "notes.md")
	require.NoError(t, err)

	outcome, err := f.coord.Skip(context.Background(), rec.ID, models.ResolvedByOverride)
	require.NoError(t, err)
	assert.Equal(t, rec.LocalVersionID, outcome.ResultingVersionID)

	after, err := f.manager.Versions(nil).History(context.Background(), "notes.md")
	require.NoError(t, err)
	assert.Len(t, after, len(before))

	got, err := f.manager.Conflicts(nil).Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSkipped, got.Status)
}

func TestCoordinator_MarkUnderReview(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	require.NoError(t, f.coord.MarkUnderReview(context.Background(), rec.ID))

	got, err := f.manager.Conflicts(nil).Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUnderReview, got.Status)

	// resolving from review still works
	_, err = f.coord.Resolve(context.Background(), rec.ID, models.StrategyRemote, models.ResolvedByManual)
	require.NoError(t, err)
}

func TestCoordinator_Resolve_UnknownConflict(t *testing.T) {
	f := newFixture()

	_, err := f.coord.Resolve(context.Background(), "missing", models.StrategyLocal, models.ResolvedByManual)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCoordinator_OnResolvedCallback(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	var gotConflict *models.ConflictRecord
	f.coord.OnResolved = func(_ context.Context, c *models.ConflictRecord, o *models.ResolutionOutcome) {
		gotConflict = c
	}

	_, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyRemote, models.ResolvedByRule)
	require.NoError(t, err)
	require.NotNil(t, gotConflict)
	assert.Equal(t, rec.ID, gotConflict.ID)
	assert.Equal(t, models.StatusAutoResolved, gotConflict.Status)
}

func TestCoordinator_OnVersionAppendedCallback(t *testing.T) {
	f := newFixture()
	rec := f.detect(t, "notes.md", "a\n", "a\nlocal\n", "a\nremote\n")

	var gotVersion *models.Version
	f.coord.OnVersionAppended = func(_ context.Context, v *models.Version) {
		gotVersion = v
	}

	outcome, err := f.coord.Resolve(context.Background(), rec.ID, models.StrategyLocal, models.ResolvedByManual)
	require.NoError(t, err)
	require.NotNil(t, gotVersion, "resolution appends must notify like store appends")
	assert.Equal(t, outcome.ResultingVersionID, gotVersion.ID)
	assert.Equal(t, models.OriginLocal, gotVersion.Origin)
}
