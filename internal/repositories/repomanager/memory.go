package repomanager

import (
	"context"
	"database/sql"

	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	"github.com/driftguard/driftguard/internal/repositories/rules"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

// MemoryRepositoryManager vends shared in-memory repositories. The DBTX
// argument is ignored; there is no database underneath.
type MemoryRepositoryManager struct {
	versions  *versions.MemoryRepository
	conflicts *conflicts.MemoryRepository
	rules     *rules.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		versions:  versions.NewMemoryRepository(),
		conflicts: conflicts.NewMemoryRepository(),
		rules:     rules.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

func (m *MemoryRepositoryManager) Versions(db dbx.DBTX) versions.Repository {
	return m.versions
}

func (m *MemoryRepositoryManager) Conflicts(db dbx.DBTX) conflicts.Repository {
	return m.conflicts
}

func (m *MemoryRepositoryManager) Rules(db dbx.DBTX) rules.Repository {
	return m.rules
}
