// Package rules evaluates resolution rules against detected conflicts.
// Evaluation is pure: the decision depends only on the conflict and the
// rule list passed in.
package rules

import (
	"fmt"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

// DecisionKind says whether a conflict can be resolved automatically.
type DecisionKind string

const (
	AutoResolve    DecisionKind = "auto_resolve"
	RequiresReview DecisionKind = "requires_review"
)

// Decision is the outcome of evaluating the rule list for one conflict.
type Decision struct {
	Kind     DecisionKind
	Strategy models.Strategy
	// RuleID is the governing rule, empty when no rule matched.
	RuleID string
	Reason string
}

// Engine applies resolution rules in position order.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Evaluate returns the decision for a conflict under the given rules. The
// first enabled rule whose CategoryMatch matches the conflict's category
// (exact tag or "*") governs. Without a match, or when the governing rule
// has auto-resolve off, the conflict requires review.
func (e *Engine) Evaluate(conflict *models.ConflictRecord, list []*models.ResolutionRule) Decision {
	for _, r := range list {
		if !r.Enabled {
			continue
		}
		if r.CategoryMatch != "*" && r.CategoryMatch != conflict.Category {
			continue
		}
		if !r.AutoResolve {
			return Decision{
				Kind:     RequiresReview,
				RuleID:   r.ID,
				Reason:   fmt.Sprintf("rule %q requires review for category %s", r.Name, conflict.Category),
				Strategy: strategyFor(r, conflict.Category),
			}
		}
		return Decision{
			Kind:     AutoResolve,
			RuleID:   r.ID,
			Strategy: strategyFor(r, conflict.Category),
			Reason:   fmt.Sprintf("rule %q auto-resolves category %s", r.Name, conflict.Category),
		}
	}
	return Decision{
		Kind:   RequiresReview,
		Reason: "no rule matches category " + conflict.Category,
	}
}

// strategyFor picks the rule's explicit strategy, falling back to the
// category convention: style conflicts keep the local side, everything
// else prefers the remote side.
func strategyFor(r *models.ResolutionRule, category string) models.Strategy {
	if r.Strategy != "" {
		return r.Strategy
	}
	if category == models.CategoryStyle {
		return models.StrategyLocal
	}
	return models.StrategyRemote
}

// Validate rejects rules that could never match or would misbehave when
// stored: empty category match, unknown sensitivity, unknown strategy.
func Validate(r *models.ResolutionRule) error {
	if r.CategoryMatch == "" {
		return fmt.Errorf("category match is empty: %w", common.ErrInvalidRule)
	}
	if _, err := models.ParseSensitivity(r.Sensitivity.String()); err != nil {
		return fmt.Errorf("sensitivity %q: %w", r.Sensitivity, common.ErrInvalidRule)
	}
	if r.Strategy != "" {
		if _, err := models.ParseStrategy(r.Strategy.String()); err != nil {
			return fmt.Errorf("strategy %q: %w", r.Strategy, common.ErrInvalidRule)
		}
	}
	return nil
}
