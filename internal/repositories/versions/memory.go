package versions

import (
	"context"
	"sort"
	"sync"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

// MemoryRepository is an in-memory version log used by tests and by
// embedded deployments that do not need persistence.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*models.Version
	byRes map[string][]*models.Version // ascending seq
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*models.Version),
		byRes: make(map[string][]*models.Version),
	}
}

func (r *MemoryRepository) Append(ctx context.Context, v *models.Version) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	log := r.byRes[v.ResourceID]
	if n := len(log); n > 0 {
		v.Seq = log[n-1].Seq + 1
	} else {
		v.Seq = 1
	}

	stored := *v
	stored.Payload = append([]byte(nil), v.Payload...)
	r.byID[v.ID] = &stored
	r.byRes[v.ResourceID] = append(log, &stored)
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, versionID string) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.byID[versionID]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *MemoryRepository) History(ctx context.Context, resourceID string) ([]*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.byRes[resourceID]
	result := make([]*models.Version, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		cp := *log[i]
		result = append(result, &cp)
	}
	return result, nil
}

func (r *MemoryRepository) LatestByOrigin(ctx context.Context, resourceID string, origin models.Origin) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.byRes[resourceID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Origin == origin {
			cp := *log[i]
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) LatestBefore(ctx context.Context, resourceID string, seq int64) (*models.Version, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	log := r.byRes[resourceID]
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Seq < seq {
			cp := *log[i]
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r *MemoryRepository) Resources(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, 0, len(r.byRes))
	for id := range r.byRes {
		result = append(result, id)
	}
	sort.Strings(result)
	return result, nil
}
