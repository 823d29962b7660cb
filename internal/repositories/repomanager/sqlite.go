package repomanager

import (
	"context"
	"database/sql"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	litemigrations "github.com/driftguard/driftguard/internal/repositories/migrations/sqlite"
	"github.com/driftguard/driftguard/internal/repositories/rules"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

// SQLiteRepositoryManager vends SQLite-backed repositories for embedded,
// single-node deployments.
type SQLiteRepositoryManager struct{}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

func (m *SQLiteRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(litemigrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return gooseUpContext(ctx, db, ".")
}

func (m *SQLiteRepositoryManager) Versions(db dbx.DBTX) versions.Repository {
	return versions.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Conflicts(db dbx.DBTX) conflicts.Repository {
	return conflicts.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Rules(db dbx.DBTX) rules.Repository {
	return rules.NewSQLiteRepository(db)
}
