package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

func conflictIn(category string) *models.ConflictRecord {
	return &models.ConflictRecord{
		ID:       "c1",
		Category: category,
		Status:   models.StatusDetected,
	}
}

func TestEngine_Evaluate_FirstEnabledMatchGoverns(t *testing.T) {
	e := NewEngine()
	list := []*models.ResolutionRule{
		{ID: "r1", Name: "disabled", CategoryMatch: "*", Enabled: false, AutoResolve: true, Position: 1},
		{ID: "r2", Name: "schema", CategoryMatch: models.CategorySchema, Enabled: true, AutoResolve: true, Position: 2},
		{ID: "r3", Name: "catch-all", CategoryMatch: "*", Enabled: true, AutoResolve: false, Position: 3},
	}

	d := e.Evaluate(conflictIn(models.CategorySchema), list)
	assert.Equal(t, AutoResolve, d.Kind)
	assert.Equal(t, "r2", d.RuleID)

	d = e.Evaluate(conflictIn(models.CategoryStructural), list)
	assert.Equal(t, RequiresReview, d.Kind)
	assert.Equal(t, "r3", d.RuleID)
}

func TestEngine_Evaluate_NoMatchRequiresReview(t *testing.T) {
	e := NewEngine()

	d := e.Evaluate(conflictIn(models.CategoryStyle), nil)
	assert.Equal(t, RequiresReview, d.Kind)
	assert.Empty(t, d.RuleID)
}

func TestEngine_Evaluate_DefaultStrategyConvention(t *testing.T) {
	e := NewEngine()
	list := []*models.ResolutionRule{
		{ID: "r1", CategoryMatch: "*", Enabled: true, AutoResolve: true},
	}

	d := e.Evaluate(conflictIn(models.CategoryStyle), list)
	assert.Equal(t, models.StrategyLocal, d.Strategy)

	for _, category := range []string{models.CategoryStructural, models.CategorySchema, models.CategoryConfiguration} {
		d := e.Evaluate(conflictIn(category), list)
		assert.Equal(t, models.StrategyRemote, d.Strategy, category)
	}
}

func TestEngine_Evaluate_RuleStrategyOverridesConvention(t *testing.T) {
	e := NewEngine()
	list := []*models.ResolutionRule{
		{ID: "r1", CategoryMatch: models.CategoryStyle, Enabled: true, AutoResolve: true, Strategy: models.StrategyMerge},
	}

	d := e.Evaluate(conflictIn(models.CategoryStyle), list)
	assert.Equal(t, models.StrategyMerge, d.Strategy)
}

func TestEngine_Evaluate_Deterministic(t *testing.T) {
	e := NewEngine()
	list := []*models.ResolutionRule{
		{ID: "r1", CategoryMatch: "*", Enabled: true, AutoResolve: true, Sensitivity: models.SensitivityMedium},
	}
	c := conflictIn(models.CategoryConfiguration)

	first := e.Evaluate(c, list)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.Evaluate(c, list))
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		rule    models.ResolutionRule
		wantErr bool
	}{
		{"valid", models.ResolutionRule{CategoryMatch: "*", Sensitivity: models.SensitivityHigh}, false},
		{"valid with strategy", models.ResolutionRule{CategoryMatch: "style", Sensitivity: models.SensitivityLow, Strategy: models.StrategyLocal}, false},
		{"empty category", models.ResolutionRule{Sensitivity: models.SensitivityHigh}, true},
		{"bad sensitivity", models.ResolutionRule{CategoryMatch: "*", Sensitivity: "extreme"}, true},
		{"bad strategy", models.ResolutionRule{CategoryMatch: "*", Sensitivity: models.SensitivityHigh, Strategy: "coin-flip"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(&tt.rule)
			if tt.wantErr {
				assert.ErrorIs(t, err, common.ErrInvalidRule)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
