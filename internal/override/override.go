// Package override implements user-defined override rules that preempt
// standard rule evaluation, including sandboxed custom merge procedures.
package override

import (
	"path"

	"github.com/driftguard/driftguard/internal/models"
)

// Match returns the first enabled override rule whose condition matches the
// conflict. Rules are checked in the order given (position order when they
// come from the repository). A condition matches when every set field
// matches; an empty condition matches everything.
func Match(conflict *models.ConflictRecord, list []*models.OverrideRule) (*models.OverrideRule, bool) {
	for _, r := range list {
		if !r.Enabled {
			continue
		}
		if conditionMatches(r.Condition, conflict) {
			return r, true
		}
	}
	return nil, false
}

func conditionMatches(c models.OverrideCondition, conflict *models.ConflictRecord) bool {
	if c.PathPattern != "" {
		ok, err := path.Match(c.PathPattern, conflict.ResourcePath)
		if err != nil || !ok {
			return false
		}
	}
	if c.Category != "" && c.Category != conflict.Category {
		return false
	}
	if c.MinScore > 0 && conflict.Score < c.MinScore {
		return false
	}
	return true
}
