package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/driftguard/driftguard/internal/models"
)

// RulesFileFormat is the YAML shape of a rules file:
//
//	resolution_rules:
//	  - id: prefer-remote
//	    name: prefer remote everywhere
//	    category: "*"
//	    enabled: true
//	    sensitivity: high
//	    auto_resolve: true
//	    strategy: remote
//	    position: 1
//	override_rules:
//	  - id: keep-notes
//	    name: never lose my notes
//	    path_pattern: "notes/*.md"
//	    category: structural
//	    min_score: 0.5
//	    action: force_local
//	    procedure_file: merge.wasm
//	    enabled: true
//	    position: 1
//
// procedure_file paths are resolved relative to the rules file.
type RulesFileFormat struct {
	ResolutionRules []resolutionRuleYAML `yaml:"resolution_rules"`
	OverrideRules   []overrideRuleYAML   `yaml:"override_rules"`
}

type resolutionRuleYAML struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Enabled     bool   `yaml:"enabled"`
	Sensitivity string `yaml:"sensitivity"`
	AutoResolve bool   `yaml:"auto_resolve"`
	Strategy    string `yaml:"strategy"`
	Position    int    `yaml:"position"`
}

type overrideRuleYAML struct {
	ID            string  `yaml:"id"`
	Name          string  `yaml:"name"`
	PathPattern   string  `yaml:"path_pattern"`
	Category      string  `yaml:"category"`
	MinScore      float64 `yaml:"min_score"`
	Action        string  `yaml:"action"`
	ProcedureFile string  `yaml:"procedure_file"`
	Enabled       bool    `yaml:"enabled"`
	Position      int     `yaml:"position"`
}

// LoadRulesFile reads a YAML rules file and converts it into model rules.
// Unknown enum values fail loading; a missing procedure file for a
// custom_merge rule fails loading too.
func LoadRulesFile(path string) ([]*models.ResolutionRule, []*models.OverrideRule, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("rules file: %w", err)
	}

	var f RulesFileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, nil, fmt.Errorf("rules file %s: %w", path, err)
	}

	var resolution []*models.ResolutionRule
	for _, r := range f.ResolutionRules {
		sensitivity, err := models.ParseSensitivity(r.Sensitivity)
		if err != nil {
			return nil, nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
		var strategy models.Strategy
		if r.Strategy != "" {
			strategy, err = models.ParseStrategy(r.Strategy)
			if err != nil {
				return nil, nil, fmt.Errorf("rule %s: %w", r.ID, err)
			}
		}
		resolution = append(resolution, &models.ResolutionRule{
			ID:            r.ID,
			Name:          r.Name,
			CategoryMatch: r.Category,
			Enabled:       r.Enabled,
			Sensitivity:   sensitivity,
			AutoResolve:   r.AutoResolve,
			Strategy:      strategy,
			Position:      r.Position,
		})
	}

	var overrides []*models.OverrideRule
	for _, r := range f.OverrideRules {
		action, err := models.ParseOverrideAction(r.Action)
		if err != nil {
			return nil, nil, fmt.Errorf("override rule %s: %w", r.ID, err)
		}
		var procedure []byte
		if r.ProcedureFile != "" {
			procedure, err = os.ReadFile(filepath.Join(filepath.Dir(path), r.ProcedureFile))
			if err != nil {
				return nil, nil, fmt.Errorf("override rule %s: %w", r.ID, err)
			}
		}
		if action == models.OverrideCustomMerge && len(procedure) == 0 {
			return nil, nil, fmt.Errorf("override rule %s: custom_merge without procedure_file", r.ID)
		}
		overrides = append(overrides, &models.OverrideRule{
			ID:   r.ID,
			Name: r.Name,
			Condition: models.OverrideCondition{
				PathPattern: r.PathPattern,
				Category:    r.Category,
				MinScore:    r.MinScore,
			},
			Action:    action,
			Procedure: procedure,
			Enabled:   r.Enabled,
			Position:  r.Position,
		})
	}
	return resolution, overrides, nil
}
