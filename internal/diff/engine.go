// Package diff computes structural line-level differences between two
// versions of a resource. The engine is pure: identical inputs always
// produce identical, identically-ordered output.
package diff

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/driftguard/driftguard/internal/common"
	"github.com/driftguard/driftguard/internal/models"
)

// Result holds the deltas of one Diff call, attributed to each input.
//
// OldChanges carries removals and the old-side content of modified lines;
// NewChanges carries additions and the new-side content of modified lines.
// Modified entries appear in both lists under the old-side line number, so
// the two views of one edit stay correlated. Additions use new-side line
// numbers, removals old-side ones.
type Result struct {
	OldChanges []models.DiffChange
	NewChanges []models.DiffChange
}

// Combined returns both sides interleaved in line order, old side first on
// ties. Used by the compare surface where attribution does not matter.
func (r Result) Combined() []models.DiffChange {
	out := make([]models.DiffChange, 0, len(r.OldChanges)+len(r.NewChanges))
	i, j := 0, 0
	for i < len(r.OldChanges) && j < len(r.NewChanges) {
		if r.OldChanges[i].Line <= r.NewChanges[j].Line {
			out = append(out, r.OldChanges[i])
			i++
		} else {
			out = append(out, r.NewChanges[j])
			j++
		}
	}
	out = append(out, r.OldChanges[i:]...)
	out = append(out, r.NewChanges[j:]...)
	return out
}

// Engine is the stateless diff engine.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Diff compares two payloads line by line.
//
// Lines present only in new are added; present only in old are removed;
// lines paired at the same position with different content are modified.
// Payloads that are not line-oriented text are rejected with
// common.ErrUnparseable; no partial output is ever returned.
func (e *Engine) Diff(old, new []byte) (Result, error) {
	oldLines, err := SplitLines(old)
	if err != nil {
		return Result{}, fmt.Errorf("old payload: %w", err)
	}
	newLines, err := SplitLines(new)
	if err != nil {
		return Result{}, fmt.Errorf("new payload: %w", err)
	}

	var res Result
	m := difflib.NewMatcher(oldLines, newLines)
	for _, op := range m.GetOpCodes() {
		switch op.Tag {
		case 'e':
			continue
		case 'd':
			for i := op.I1; i < op.I2; i++ {
				res.OldChanges = append(res.OldChanges, models.DiffChange{
					Line:    i + 1,
					Kind:    models.ChangeRemoved,
					Content: oldLines[i],
					Context: contextLine(oldLines, i),
				})
			}
		case 'i':
			for j := op.J1; j < op.J2; j++ {
				res.NewChanges = append(res.NewChanges, models.DiffChange{
					Line:    j + 1,
					Kind:    models.ChangeAdded,
					Content: newLines[j],
					Context: contextLine(newLines, j),
				})
			}
		case 'r':
			// Pair lines positionally; the unpaired tail of the longer
			// span degrades to plain removals/additions.
			span := min(op.I2-op.I1, op.J2-op.J1)
			for k := 0; k < span; k++ {
				oldLine := op.I1 + k
				res.OldChanges = append(res.OldChanges, models.DiffChange{
					Line:    oldLine + 1,
					Kind:    models.ChangeModified,
					Content: oldLines[oldLine],
					Context: contextLine(oldLines, oldLine),
				})
				res.NewChanges = append(res.NewChanges, models.DiffChange{
					Line:    oldLine + 1,
					Kind:    models.ChangeModified,
					Content: newLines[op.J1+k],
					Context: contextLine(oldLines, oldLine),
				})
			}
			for i := op.I1 + span; i < op.I2; i++ {
				res.OldChanges = append(res.OldChanges, models.DiffChange{
					Line:    i + 1,
					Kind:    models.ChangeRemoved,
					Content: oldLines[i],
					Context: contextLine(oldLines, i),
				})
			}
			for j := op.J1 + span; j < op.J2; j++ {
				res.NewChanges = append(res.NewChanges, models.DiffChange{
					Line:    j + 1,
					Kind:    models.ChangeAdded,
					Content: newLines[j],
					Context: contextLine(newLines, j),
				})
			}
		}
	}
	return res, nil
}

// Score computes the divergence score of a diff over the given payloads:
// the number of changed lines weighted over the larger line count.
// The result is in [0,1]; 0 means identical.
func Score(res Result, old, new []byte) float64 {
	oldLines, _ := SplitLines(old)
	newLines, _ := SplitLines(new)
	total := max(len(oldLines), len(newLines))
	if total == 0 {
		return 0
	}

	touched := map[int]struct{}{}
	for _, c := range res.OldChanges {
		touched[c.Line] = struct{}{}
	}
	adds := 0
	for _, c := range res.NewChanges {
		if c.Kind == models.ChangeAdded {
			adds++
		}
	}
	score := float64(len(touched)+adds) / float64(total)
	if score > 1 {
		score = 1
	}
	return score
}

// SplitLines validates that payload is line-oriented text and splits it.
// Binary payloads (invalid UTF-8 or NUL bytes) yield common.ErrUnparseable.
// A trailing newline does not produce a final empty line.
func SplitLines(payload []byte) ([]string, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if !utf8.Valid(payload) || bytes.IndexByte(payload, 0) >= 0 {
		return nil, common.ErrUnparseable
	}
	s := strings.TrimSuffix(string(payload), "\n")
	if s == "" {
		return nil, nil
	}
	return strings.Split(s, "\n"), nil
}

// JoinLines is the inverse of SplitLines.
func JoinLines(lines []string) []byte {
	if len(lines) == 0 {
		return nil
	}
	return []byte(strings.Join(lines, "\n") + "\n")
}

func contextLine(lines []string, i int) string {
	if i > 0 {
		return lines[i-1]
	}
	return ""
}
