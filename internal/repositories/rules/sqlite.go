package rules

import (
	"context"
	"fmt"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/dbx"
	"github.com/driftguard/driftguard/internal/models"
)

// SQLiteRepository implements the rule table over modernc.org/sqlite.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) UpsertResolution(ctx context.Context, rule *models.ResolutionRule) error {
	query := `
		INSERT INTO resolution_rules (id, name, category_match, enabled, sensitivity, auto_resolve, strategy, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			category_match = EXCLUDED.category_match,
			enabled = EXCLUDED.enabled,
			sensitivity = EXCLUDED.sensitivity,
			auto_resolve = EXCLUDED.auto_resolve,
			strategy = EXCLUDED.strategy,
			position = EXCLUDED.position;
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.CategoryMatch, rule.Enabled,
		rule.Sensitivity.String(), rule.AutoResolve, string(rule.Strategy), rule.Position)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListResolution(ctx context.Context) ([]*models.ResolutionRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, category_match, enabled, sensitivity, auto_resolve, strategy, position
		FROM resolution_rules ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select resolution rules: %w", err)
	}
	defer rows.Close()

	var result []*models.ResolutionRule
	for rows.Next() {
		var rule models.ResolutionRule
		var sensitivity, strategy string
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.CategoryMatch, &rule.Enabled,
			&sensitivity, &rule.AutoResolve, &strategy, &rule.Position); err != nil {
			return nil, err
		}
		parsed, err := models.ParseSensitivity(sensitivity)
		if err != nil {
			return nil, err
		}
		rule.Sensitivity = parsed
		rule.Strategy = models.Strategy(strategy)
		result = append(result, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteResolution(ctx context.Context, ruleID string) error {
	return r.deleteFrom(ctx, "resolution_rules", ruleID)
}

func (r *SQLiteRepository) UpsertOverride(ctx context.Context, rule *models.OverrideRule) error {
	query := `
		INSERT INTO override_rules (id, name, path_pattern, category, min_score, action, procedure, enabled, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			name = EXCLUDED.name,
			path_pattern = EXCLUDED.path_pattern,
			category = EXCLUDED.category,
			min_score = EXCLUDED.min_score,
			action = EXCLUDED.action,
			procedure = EXCLUDED.procedure,
			enabled = EXCLUDED.enabled,
			position = EXCLUDED.position;
	`
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Condition.PathPattern, rule.Condition.Category,
		rule.Condition.MinScore, rule.Action.String(), rule.Procedure, rule.Enabled, rule.Position)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) ListOverride(ctx context.Context) ([]*models.OverrideRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, path_pattern, category, min_score, action, procedure, enabled, position
		FROM override_rules ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select override rules: %w", err)
	}
	defer rows.Close()

	var result []*models.OverrideRule
	for rows.Next() {
		var rule models.OverrideRule
		var action string
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Condition.PathPattern,
			&rule.Condition.Category, &rule.Condition.MinScore, &action,
			&rule.Procedure, &rule.Enabled, &rule.Position); err != nil {
			return nil, err
		}
		parsed, err := models.ParseOverrideAction(action)
		if err != nil {
			return nil, err
		}
		rule.Action = parsed
		result = append(result, &rule)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) DeleteOverride(ctx context.Context, ruleID string) error {
	return r.deleteFrom(ctx, "override_rules", ruleID)
}

func (r *SQLiteRepository) deleteFrom(ctx context.Context, table, ruleID string) error {
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), ruleID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
