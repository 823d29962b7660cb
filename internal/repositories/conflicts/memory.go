package conflicts

import (
	"context"
	"sort"
	"sync"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

// MemoryRepository is an in-memory conflict/outcome log for tests and
// embedded use.
type MemoryRepository struct {
	mu        sync.RWMutex
	conflicts map[string]*models.ConflictRecord
	outcomes  map[string]*models.ResolutionOutcome
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conflicts: make(map[string]*models.ConflictRecord),
		outcomes:  make(map[string]*models.ResolutionOutcome),
	}
}

func (r *MemoryRepository) Insert(ctx context.Context, c *models.ConflictRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.conflicts[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, conflictID string) (*models.ConflictRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conflicts[conflictID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepository) List(ctx context.Context, f Filter) ([]*models.ConflictRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.ConflictRecord
	for _, c := range r.conflicts {
		if f.Status != nil && c.Status != *f.Status {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].DetectedAt.Equal(result[j].DetectedAt) {
			return result[i].DetectedAt.After(result[j].DetectedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, conflictID string, from, to models.ConflictStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conflicts[conflictID]
	if !ok {
		return common.ErrNotFound
	}
	if c.Status != from {
		return common.ErrConflictTerminal
	}
	c.Status = to
	return nil
}

func (r *MemoryRepository) ActiveForResource(ctx context.Context, resourceID string) (*models.ConflictRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, c := range r.conflicts {
		if c.ResourceID == resourceID && !c.Status.Terminal() {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) CountActive(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, c := range r.conflicts {
		if !c.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) InsertOutcome(ctx context.Context, o *models.ResolutionOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.outcomes[o.ConflictID] = &cp
	return nil
}

func (r *MemoryRepository) GetOutcome(ctx context.Context, conflictID string) (*models.ResolutionOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.outcomes[conflictID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryRepository) LatestOutcomeForResource(ctx context.Context, resourceID string) (*models.ResolutionOutcome, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.ResolutionOutcome
	for conflictID, o := range r.outcomes {
		c, ok := r.conflicts[conflictID]
		if !ok || c.ResourceID != resourceID {
			continue
		}
		if latest == nil || o.ResolvedAt.After(latest.ResolvedAt) {
			latest = o
		}
	}
	if latest == nil {
		return nil, common.ErrNotFound
	}
	cp := *latest
	return &cp, nil
}
