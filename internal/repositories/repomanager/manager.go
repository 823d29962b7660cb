// Package repomanager wires repository implementations for a chosen storage
// backend and exposes the schema migration hook.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/repositories/conflicts"
	"github.com/driftguard/driftguard/internal/repositories/rules"
	"github.com/driftguard/driftguard/internal/repositories/versions"
)

// RepositoryManager vends repositories bound to a DBTX so that services can
// run several repository calls inside one transaction.
type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Versions(db dbx.DBTX) versions.Repository
	Conflicts(db dbx.DBTX) conflicts.Repository
	Rules(db dbx.DBTX) rules.Repository
}
