package versions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/models"
)

// PostgresRepository implements the version log over a dbx.DBTX
// (*sql.DB or *sql.Tx) using the pgx stdlib driver.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Append inserts the version with the next per-resource sequence number.
// The sequence is computed inside the INSERT so the append is a single
// indivisible statement.
func (r *PostgresRepository) Append(ctx context.Context, v *models.Version) error {
	query := `
		INSERT INTO versions (id, resource_id, author, origin, seq, change_count, payload, created_at)
		VALUES ($1, $2, $3, $4,
			COALESCE((SELECT MAX(seq) FROM versions WHERE resource_id = $2), 0) + 1,
			$5, $6, $7)
		RETURNING seq;
	`
	row := r.db.QueryRowContext(ctx, query,
		v.ID, v.ResourceID, v.Author, v.Origin.String(), v.ChangeCount, v.Payload, v.CreatedAt)
	if err := row.Scan(&v.Seq); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, versionID string) (*models.Version, error) {
	query := selectColumns + ` WHERE id = $1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, versionID))
}

func (r *PostgresRepository) History(ctx context.Context, resourceID string) ([]*models.Version, error) {
	query := selectColumns + ` WHERE resource_id = $1 ORDER BY seq DESC`
	rows, err := r.db.QueryContext(ctx, query, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to select versions: %w", err)
	}
	defer rows.Close()

	var result []*models.Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) LatestByOrigin(ctx context.Context, resourceID string, origin models.Origin) (*models.Version, error) {
	query := selectColumns + ` WHERE resource_id = $1 AND origin = $2 ORDER BY seq DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, resourceID, origin.String()))
}

func (r *PostgresRepository) LatestBefore(ctx context.Context, resourceID string, seq int64) (*models.Version, error) {
	query := selectColumns + ` WHERE resource_id = $1 AND seq < $2 ORDER BY seq DESC LIMIT 1`
	return r.scanOne(r.db.QueryRowContext(ctx, query, resourceID, seq))
}

func (r *PostgresRepository) Resources(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT resource_id FROM versions ORDER BY resource_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select resources: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

const selectColumns = `SELECT id, resource_id, author, origin, seq, change_count, payload, created_at FROM versions`

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.Version, error) {
	v, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return v, err
}

func scanVersion(row rowScanner) (*models.Version, error) {
	var v models.Version
	var origin string
	if err := row.Scan(&v.ID, &v.ResourceID, &v.Author, &origin, &v.Seq, &v.ChangeCount, &v.Payload, &v.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := models.ParseOrigin(origin)
	if err != nil {
		return nil, err
	}
	v.Origin = parsed
	return &v, nil
}
