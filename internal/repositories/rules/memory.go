package rules

import (
	"context"
	"sort"
	"sync"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

// MemoryRepository keeps rule configuration in memory. List results are
// copies; mutation only affects evaluations started afterwards.
type MemoryRepository struct {
	mu         sync.RWMutex
	resolution map[string]*models.ResolutionRule
	override   map[string]*models.OverrideRule
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		resolution: make(map[string]*models.ResolutionRule),
		override:   make(map[string]*models.OverrideRule),
	}
}

func (r *MemoryRepository) UpsertResolution(ctx context.Context, rule *models.ResolutionRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	r.resolution[rule.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListResolution(ctx context.Context) ([]*models.ResolutionRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.ResolutionRule, 0, len(r.resolution))
	for _, rule := range r.resolution {
		cp := *rule
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *MemoryRepository) DeleteResolution(ctx context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.resolution[ruleID]; !ok {
		return common.ErrNotFound
	}
	delete(r.resolution, ruleID)
	return nil
}

func (r *MemoryRepository) UpsertOverride(ctx context.Context, rule *models.OverrideRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rule
	cp.Procedure = append([]byte(nil), rule.Procedure...)
	r.override[rule.ID] = &cp
	return nil
}

func (r *MemoryRepository) ListOverride(ctx context.Context) ([]*models.OverrideRule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*models.OverrideRule, 0, len(r.override))
	for _, rule := range r.override {
		cp := *rule
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Position != result[j].Position {
			return result[i].Position < result[j].Position
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *MemoryRepository) DeleteOverride(ctx context.Context, ruleID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.override[ruleID]; !ok {
		return common.ErrNotFound
	}
	delete(r.override, ruleID)
	return nil
}
