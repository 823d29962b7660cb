package conflicts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/models"
)

// SQLiteRepository implements the conflict/outcome log over modernc.org/sqlite.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Insert(ctx context.Context, c *models.ConflictRecord) error {
	local, remote, err := marshalChanges(c)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO conflicts (id, resource_id, resource_path, category, score,
			local_version_id, remote_version_id, base_version_id,
			local_changes, remote_changes, status, detected_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
	`
	_, err = r.db.ExecContext(ctx, query,
		c.ID, c.ResourceID, c.ResourcePath, c.Category, c.Score,
		c.LocalVersionID, c.RemoteVersionID, c.BaseVersionID,
		local, remote, c.Status.String(), c.DetectedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Get(ctx context.Context, conflictID string) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx, conflictColumns+` WHERE id = ?`, conflictID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return c, err
}

func (r *SQLiteRepository) List(ctx context.Context, f Filter) ([]*models.ConflictRecord, error) {
	var conds []string
	var args []any
	if f.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, f.Status.String())
	}
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	query := conflictColumns
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY detected_at DESC, id"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select conflicts: %w", err)
	}
	defer rows.Close()

	var result []*models.ConflictRecord
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) UpdateStatus(ctx context.Context, conflictID string, from, to models.ConflictStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conflicts SET status = ? WHERE id = ? AND status = ?`,
		to.String(), conflictID, from.String())
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := r.Get(ctx, conflictID); err != nil {
		return err
	}
	return common.ErrConflictTerminal
}

func (r *SQLiteRepository) ActiveForResource(ctx context.Context, resourceID string) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx,
		conflictColumns+` WHERE resource_id = ? AND status IN (?, ?) ORDER BY detected_at DESC LIMIT 1`,
		resourceID, models.StatusDetected.String(), models.StatusUnderReview.String())
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return c, err
}

func (r *SQLiteRepository) CountActive(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE status IN (?, ?)`,
		models.StatusDetected.String(), models.StatusUnderReview.String())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) InsertOutcome(ctx context.Context, o *models.ResolutionOutcome) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outcomes (conflict_id, strategy, resulting_version_id, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?);`,
		o.ConflictID, o.Strategy.String(), o.ResultingVersionID, o.ResolvedBy.String(), o.ResolvedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetOutcome(ctx context.Context, conflictID string) (*models.ResolutionOutcome, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conflict_id, strategy, resulting_version_id, resolved_by, resolved_at
		FROM outcomes WHERE conflict_id = ?`, conflictID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return o, err
}

func (r *SQLiteRepository) LatestOutcomeForResource(ctx context.Context, resourceID string) (*models.ResolutionOutcome, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT o.conflict_id, o.strategy, o.resulting_version_id, o.resolved_by, o.resolved_at
		FROM outcomes o
		JOIN conflicts c ON c.id = o.conflict_id
		WHERE c.resource_id = ?
		ORDER BY o.resolved_at DESC
		LIMIT 1`, resourceID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return o, err
}
