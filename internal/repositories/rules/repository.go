// Package rules persists the rule configuration table: resolution rules
// and override rules, both kept in explicit Position order.
package rules

import (
	"context"

	"github.com/driftguard/driftguard/internal/models"
)

type Repository interface {
	UpsertResolution(ctx context.Context, rule *models.ResolutionRule) error
	ListResolution(ctx context.Context) ([]*models.ResolutionRule, error)
	DeleteResolution(ctx context.Context, ruleID string) error

	UpsertOverride(ctx context.Context, rule *models.OverrideRule) error
	ListOverride(ctx context.Context) ([]*models.OverrideRule, error)
	DeleteOverride(ctx context.Context, ruleID string) error
}
