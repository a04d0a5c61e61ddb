// internal/diff/engine.go

// Package diff computes the human-readable and machine-applicable views
// of a proposed repair: a unified diff for session records and reports,
// and a list of line edits that can be replayed against the original.
package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/opsmedic/codemedic/api/schemas"
)

const contextLines = 3

// Compute diffs the fixed text against the original. It returns the
// unified diff and the equivalent line edits; both are empty when the two
// texts are identical after newline normalization. The returned edits
// satisfy ApplyLineEdits(original, edits) == fixed.
func Compute(original, fixed string) (string, []schemas.LineEdit, error) {
	a := normalize(original)
	b := normalize(fixed)
	if a == b {
		return "", nil, nil
	}

	unified, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(a),
		B:        difflib.SplitLines(b),
		FromFile: "original",
		ToFile:   "fixed",
		Context:  contextLines,
	})
	if err != nil {
		return "", nil, err
	}

	return unified, lineEdits(splitLines(a), splitLines(b)), nil
}

// ApplyLineEdits replays edits against the original text and returns the
// resulting document. Edits must target the original's coordinates, the
// way Compute produces them.
func ApplyLineEdits(original string, edits []schemas.LineEdit) string {
	lines := splitLines(normalize(original))

	// Inserts key on the original line they land before; replaces and
	// deletes key on the line they affect.
	inserts := make(map[int][]string)
	replaces := make(map[int]string)
	deletes := make(map[int]struct{})

	for _, e := range edits {
		switch e.Op {
		case schemas.EditInsert:
			inserts[e.LineNumber] = append(inserts[e.LineNumber], e.NewText)
		case schemas.EditReplace:
			replaces[e.LineNumber] = e.NewText
		case schemas.EditDelete:
			deletes[e.LineNumber] = struct{}{}
		}
	}

	out := make([]string, 0, len(lines)+len(edits))
	for i := 0; i <= len(lines); i++ {
		lineNo := i + 1
		out = append(out, inserts[lineNo]...)
		if i == len(lines) {
			break
		}
		if _, gone := deletes[lineNo]; gone {
			continue
		}
		if text, ok := replaces[lineNo]; ok {
			out = append(out, text)
			continue
		}
		out = append(out, lines[i])
	}
	return strings.Join(out, "\n")
}

// lineEdits converts matcher opcodes into line edits. Replace opcodes pair
// old and new lines positionally; the overhang becomes plain inserts or
// deletes. Inserts from a replace overhang anchor after the replaced span,
// so application order is preserved.
func lineEdits(a, b []string) []schemas.LineEdit {
	var edits []schemas.LineEdit

	matcher := difflib.NewMatcher(a, b)
	for _, op := range matcher.GetOpCodes() {
		switch op.Tag {
		case 'e':
			continue
		case 'd':
			for k := op.I1; k < op.I2; k++ {
				edits = append(edits, schemas.LineEdit{
					Op:         schemas.EditDelete,
					LineNumber: k + 1,
					OldText:    a[k],
				})
			}
		case 'i':
			for k := op.J1; k < op.J2; k++ {
				edits = append(edits, schemas.LineEdit{
					Op:         schemas.EditInsert,
					LineNumber: op.I1 + 1,
					NewText:    b[k],
				})
			}
		case 'r':
			oldN := op.I2 - op.I1
			newN := op.J2 - op.J1
			paired := oldN
			if newN < paired {
				paired = newN
			}
			for k := 0; k < paired; k++ {
				edits = append(edits, schemas.LineEdit{
					Op:         schemas.EditReplace,
					LineNumber: op.I1 + k + 1,
					OldText:    a[op.I1+k],
					NewText:    b[op.J1+k],
				})
			}
			for k := op.I1 + paired; k < op.I2; k++ {
				edits = append(edits, schemas.LineEdit{
					Op:         schemas.EditDelete,
					LineNumber: k + 1,
					OldText:    a[k],
				})
			}
			for k := op.J1 + paired; k < op.J2; k++ {
				edits = append(edits, schemas.LineEdit{
					Op:         schemas.EditInsert,
					LineNumber: op.I2 + 1,
					NewText:    b[k],
				})
			}
		}
	}
	return edits
}

func normalize(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

func splitLines(s string) []string {
	return strings.Split(s, "\n")
}
