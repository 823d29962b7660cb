package conflicts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/models"
)

// PostgresRepository implements the conflict/outcome log over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const conflictColumns = `SELECT id, resource_id, resource_path, category, score,
	local_version_id, remote_version_id, base_version_id,
	local_changes, remote_changes, status, detected_at FROM conflicts`

func (r *PostgresRepository) Insert(ctx context.Context, c *models.ConflictRecord) error {
	local, remote, err := marshalChanges(c)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO conflicts (id, resource_id, resource_path, category, score,
			local_version_id, remote_version_id, base_version_id,
			local_changes, remote_changes, status, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
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

func (r *PostgresRepository) Get(ctx context.Context, conflictID string) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx, conflictColumns+` WHERE id = $1`, conflictID)
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return c, err
}

func (r *PostgresRepository) List(ctx context.Context, f Filter) ([]*models.ConflictRecord, error) {
	var conds []string
	var args []any
	if f.Status != nil {
		args = append(args, f.Status.String())
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
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

// UpdateStatus performs a compare-and-swap on the status column so that a
// lost race shows up as zero rows affected instead of a silent overwrite.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, conflictID string, from, to models.ConflictStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE conflicts SET status = $1 WHERE id = $2 AND status = $3`,
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

func (r *PostgresRepository) ActiveForResource(ctx context.Context, resourceID string) (*models.ConflictRecord, error) {
	row := r.db.QueryRowContext(ctx,
		conflictColumns+` WHERE resource_id = $1 AND status IN ($2, $3) ORDER BY detected_at DESC LIMIT 1`,
		resourceID, models.StatusDetected.String(), models.StatusUnderReview.String())
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return c, err
}

func (r *PostgresRepository) CountActive(ctx context.Context) (int, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM conflicts WHERE status IN ($1, $2)`,
		models.StatusDetected.String(), models.StatusUnderReview.String())
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) InsertOutcome(ctx context.Context, o *models.ResolutionOutcome) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO outcomes (conflict_id, strategy, resulting_version_id, resolved_by, resolved_at)
		VALUES ($1, $2, $3, $4, $5);`,
		o.ConflictID, o.Strategy.String(), o.ResultingVersionID, o.ResolvedBy.String(), o.ResolvedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetOutcome(ctx context.Context, conflictID string) (*models.ResolutionOutcome, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT conflict_id, strategy, resulting_version_id, resolved_by, resolved_at
		FROM outcomes WHERE conflict_id = $1`, conflictID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return o, err
}

func (r *PostgresRepository) LatestOutcomeForResource(ctx context.Context, resourceID string) (*models.ResolutionOutcome, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT o.conflict_id, o.strategy, o.resulting_version_id, o.resolved_by, o.resolved_at
		FROM outcomes o
		JOIN conflicts c ON c.id = o.conflict_id
		WHERE c.resource_id = $1
		ORDER BY o.resolved_at DESC
		LIMIT 1`, resourceID)
	o, err := scanOutcome(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return o, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func marshalChanges(c *models.ConflictRecord) ([]byte, []byte, error) {
	local, err := json.Marshal(c.LocalChanges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal local changes: %w", err)
	}
	remote, err := json.Marshal(c.RemoteChanges)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal remote changes: %w", err)
	}
	return local, remote, nil
}

func scanConflict(row rowScanner) (*models.ConflictRecord, error) {
	var c models.ConflictRecord
	var local, remote []byte
	var status string
	if err := row.Scan(&c.ID, &c.ResourceID, &c.ResourcePath, &c.Category, &c.Score,
		&c.LocalVersionID, &c.RemoteVersionID, &c.BaseVersionID,
		&local, &remote, &status, &c.DetectedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseConflictStatus(status)
	if err != nil {
		return nil, err
	}
	c.Status = parsed
	if err := json.Unmarshal(local, &c.LocalChanges); err != nil {
		return nil, fmt.Errorf("unmarshal local changes: %w", err)
	}
	if err := json.Unmarshal(remote, &c.RemoteChanges); err != nil {
		return nil, fmt.Errorf("unmarshal remote changes: %w", err)
	}
	return &c, nil
}

func scanOutcome(row rowScanner) (*models.ResolutionOutcome, error) {
	var o models.ResolutionOutcome
	var strategy, by string
	if err := row.Scan(&o.ConflictID, &strategy, &o.ResultingVersionID, &by, &o.ResolvedAt); err != nil {
		return nil, err
	}
	s, err := models.ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	o.Strategy = s
	o.ResolvedBy = models.ResolvedBy(by)
	return &o, nil
}
