package diff

import (
	"fmt"
	"sort"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

// Apply reconstructs the new payload from old plus the changes of one Diff
// call. It is the inverse of Diff: Apply(old, Diff(old, new)) == new.
func Apply(old []byte, res Result) ([]byte, error) {
	oldLines, err := SplitLines(old)
	if err != nil {
		return nil, fmt.Errorf("base payload: %w", err)
	}
	return JoinLines(applyLines(oldLines, res.OldChanges, res.NewChanges)), nil
}

// Merge performs a best-effort three-way merge: base is the common ancestor
// payload, local and remote are Diff(base, side) results. Non-overlapping
// changes from both sides are combined in line order. If both sides touch
// the same line with different content the merge refuses with
// common.ErrRequiresManualMerge instead of silently picking a side.
func Merge(base []byte, local, remote Result) ([]byte, error) {
	if err := checkOverlap(local, remote); err != nil {
		return nil, err
	}

	baseLines, err := SplitLines(base)
	if err != nil {
		return nil, fmt.Errorf("base payload: %w", err)
	}

	oldSide := combineUnique(local.OldChanges, remote.OldChanges)
	newSide := combineUnique(local.NewChanges, remote.NewChanges)
	return JoinLines(applyLines(baseLines, oldSide, newSide)), nil
}

// checkOverlap reports ErrRequiresManualMerge when both sides changed the
// same line differently. Identical changes on both sides do not conflict.
func checkOverlap(local, remote Result) error {
	type edit struct {
		kind    models.ChangeKind
		content string
	}
	touched := map[int]edit{}
	for _, c := range append(append([]models.DiffChange{}, local.OldChanges...), local.NewChanges...) {
		touched[c.Line] = edit{c.Kind, c.Content}
	}
	for _, c := range append(append([]models.DiffChange{}, remote.OldChanges...), remote.NewChanges...) {
		if prev, ok := touched[c.Line]; ok {
			if prev.kind != c.Kind || prev.content != c.Content {
				return fmt.Errorf("line %d changed on both sides: %w", c.Line, common.ErrRequiresManualMerge)
			}
		}
	}
	return nil
}

// applyLines rebuilds a document from base lines plus one change set.
// Removals and modifications address base line numbers; additions address
// line numbers in the rebuilt document.
func applyLines(base []string, oldSide, newSide []models.DiffChange) []string {
	removed := map[int]bool{}
	modified := map[int]string{}
	var additions []models.DiffChange

	for _, c := range oldSide {
		if c.Kind == models.ChangeRemoved {
			removed[c.Line] = true
		}
	}
	for _, c := range newSide {
		switch c.Kind {
		case models.ChangeModified:
			modified[c.Line] = c.Content
		case models.ChangeAdded:
			additions = append(additions, c)
		}
	}
	sort.SliceStable(additions, func(i, j int) bool { return additions[i].Line < additions[j].Line })

	out := make([]string, 0, len(base)+len(additions))
	next := 0
	for i := 1; i <= len(base); i++ {
		for next < len(additions) && additions[next].Line == len(out)+1 {
			out = append(out, additions[next].Content)
			next++
		}
		if removed[i] {
			continue
		}
		if content, ok := modified[i]; ok {
			out = append(out, content)
			continue
		}
		out = append(out, base[i-1])
	}
	for next < len(additions) {
		out = append(out, additions[next].Content)
		next++
	}
	return out
}

// combineUnique merges two ordered change lists, dropping exact duplicates
// (same line, kind and content) so identical edits made on both sides are
// applied once.
func combineUnique(a, b []models.DiffChange) []models.DiffChange {
	type key struct {
		line    int
		kind    models.ChangeKind
		content string
	}
	seen := map[key]bool{}
	out := make([]models.DiffChange, 0, len(a)+len(b))
	for _, c := range append(append([]models.DiffChange{}, a...), b...) {
		k := key{c.Line, c.Kind, c.Content}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}
