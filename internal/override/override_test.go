package override

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/logging"
	"github.com/driftguard/driftguard/internal/models"
)

func conflictAt(path, category string, score float64) *models.ConflictRecord {
	return &models.ConflictRecord{
		ID:           "c1",
		ResourceID:   path,
		ResourcePath: path,
		Category:     category,
		Score:        score,
		Status:       models.StatusDetected,
	}
}

func TestMatch_FirstEnabledMatchingRuleWins(t *testing.T) {
	list := []*models.OverrideRule{
		{ID: "o1", Enabled: false, Action: models.OverrideSkip},
		{ID: "o2", Enabled: true, Condition: models.OverrideCondition{Category: models.CategorySchema}, Action: models.OverrideForceRemote},
		{ID: "o3", Enabled: true, Action: models.OverrideForceLocal},
	}

	r, ok := Match(conflictAt("db/schema.sql", models.CategorySchema, 0.4), list)
	require.True(t, ok)
	assert.Equal(t, "o2", r.ID)

	r, ok = Match(conflictAt("pkg/server.go", models.CategoryStructural, 0.4), list)
	require.True(t, ok)
	assert.Equal(t, "o3", r.ID)
}

func TestMatch_NoRuleMatches(t *testing.T) {
	list := []*models.OverrideRule{
		{ID: "o1", Enabled: true, Condition: models.OverrideCondition{Category: models.CategoryStyle}},
	}

	_, ok := Match(conflictAt("pkg/server.go", models.CategoryStructural, 0.4), list)
	assert.False(t, ok)
}

func TestMatch_Conditions(t *testing.T) {
	tests := []struct {
		name      string
		condition models.OverrideCondition
		conflict  *models.ConflictRecord
		want      bool
	}{
		{"empty condition matches everything", models.OverrideCondition{}, conflictAt("a/b.go", models.CategoryStructural, 0.1), true},
		{"glob match", models.OverrideCondition{PathPattern: "deploy/*.yaml"}, conflictAt("deploy/values.yaml", models.CategoryConfiguration, 0.1), true},
		{"glob does not cross separators", models.OverrideCondition{PathPattern: "deploy/*.yaml"}, conflictAt("deploy/env/values.yaml", models.CategoryConfiguration, 0.1), false},
		{"bad glob never matches", models.OverrideCondition{PathPattern: "[unclosed"}, conflictAt("deploy/values.yaml", models.CategoryConfiguration, 0.1), false},
		{"min score met", models.OverrideCondition{MinScore: 0.5}, conflictAt("a.go", models.CategoryStructural, 0.5), true},
		{"min score not met", models.OverrideCondition{MinScore: 0.5}, conflictAt("a.go", models.CategoryStructural, 0.49), false},
		{"all fields must match", models.OverrideCondition{PathPattern: "*.go", Category: models.CategoryStyle}, conflictAt("a.go", models.CategoryStructural, 0.9), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := []*models.OverrideRule{{ID: "o1", Enabled: true, Condition: tt.condition}}
			_, ok := Match(tt.conflict, list)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSandbox_Merge_GarbageProcedureRejected(t *testing.T) {
	s := NewSandbox(time.Second, logging.Nop())

	_, err := s.Merge(context.Background(), []byte("not wasm at all"), Header{}, []byte("l\n"), []byte("r\n"))
	assert.ErrorIs(t, err, common.ErrSandboxViolation)
}

func TestSandbox_Merge_MissingExportsRejected(t *testing.T) {
	s := NewSandbox(time.Second, logging.Nop())

	// a syntactically valid module that exports nothing
	empty := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	_, err := s.Merge(context.Background(), empty, Header{}, []byte("l\n"), []byte("r\n"))
	assert.ErrorIs(t, err, common.ErrSandboxViolation)
}

func TestHeader_Block(t *testing.T) {
	h := Header{
		ConflictID:   "c-1",
		ResourcePath: "styles/main.css",
		Category:     models.CategoryStyle,
		Score:        0.5,
	}

	block := string(h.Block())
	assert.Equal(t,
		"conflict_id: c-1\npath: styles/main.css\ncategory: style\nscore: 0.5000\n\n",
		block)
	assert.True(t, strings.HasSuffix(block, "\n\n"), "header block must end with a blank line")
}
