// internal/diff/engine_test.go
package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmedic/codemedic/api/schemas"
)

func TestComputeIdenticalInputs(t *testing.T) {
	t.Parallel()

	code := "def main():\n    print(\"ok\")\n"
	unified, edits, err := Compute(code, code)
	require.NoError(t, err)
	assert.Empty(t, unified)
	assert.Empty(t, edits)
}

func TestComputeNormalizesLineEndings(t *testing.T) {
	t.Parallel()

	unified, edits, err := Compute("a\r\nb\r\n", "a\nb\n")
	require.NoError(t, err)
	assert.Empty(t, unified, "CRLF vs LF must not register as a change")
	assert.Empty(t, edits)
}

func TestComputeUnifiedDiffShape(t *testing.T) {
	t.Parallel()

	original := "x = 10\ny = 0\nprint(x / y)\n"
	fixed := "x = 10\ny = 2\nprint(x / y)\n"

	unified, _, err := Compute(original, fixed)
	require.NoError(t, err)

	assert.Contains(t, unified, "--- original")
	assert.Contains(t, unified, "+++ fixed")
	assert.Contains(t, unified, "-y = 0")
	assert.Contains(t, unified, "+y = 2")
}

func TestComputeLineEditsSingleReplace(t *testing.T) {
	t.Parallel()

	original := "x = 10\ny = 0\nprint(x / y)\n"
	fixed := "x = 10\ny = 2\nprint(x / y)\n"

	_, edits, err := Compute(original, fixed)
	require.NoError(t, err)

	want := []schemas.LineEdit{
		{Op: schemas.EditReplace, LineNumber: 2, OldText: "y = 0", NewText: "y = 2"},
	}
	if diff := cmp.Diff(want, edits); diff != "" {
		t.Errorf("line edits mismatch (-want +got):\n%s", diff)
	}
}

// The edits returned by Compute must replay exactly: applying them to the
// original yields the fixed text, whatever the shape of the change.
func TestLineEditsRoundTrip(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		original string
		fixed    string
	}{
		{
			name:     "single line replace",
			original: "x = 1\ny = 0\nprint(x / y)",
			fixed:    "x = 1\ny = 2\nprint(x / y)",
		},
		{
			name:     "insert at start",
			original: "print(value)",
			fixed:    "value = None\nprint(value)",
		},
		{
			name:     "insert in middle",
			original: "a = 1\nc = 3",
			fixed:    "a = 1\nb = 2\nc = 3",
		},
		{
			name:     "append at end",
			original: "a = 1",
			fixed:    "a = 1\nprint(a)",
		},
		{
			name:     "delete a line",
			original: "a = 1\nimport ghost\nb = 2",
			fixed:    "a = 1\nb = 2",
		},
		{
			name:     "insert blank line",
			original: "a = 1\nb = 2",
			fixed:    "a = 1\n\nb = 2",
		},
		{
			name:     "delete blank line",
			original: "a = 1\n\nb = 2",
			fixed:    "a = 1\nb = 2",
		},
		{
			name:     "replace line with blank",
			original: "a = 1\nb = 2\nc = 3",
			fixed:    "a = 1\n\nc = 3",
		},
		{
			name:     "replace block with shorter block",
			original: "a\nb\nc\nd",
			fixed:    "a\nX\nd",
		},
		{
			name:     "replace block with longer block",
			original: "a\nb\nd",
			fixed:    "a\nX\nY\nZ\nd",
		},
		{
			name:     "full rewrite",
			original: "while True:\n    pass",
			fixed:    "for i in range(3):\n    print(i)\nprint(\"done\")",
		},
		{
			name:     "trailing newline added",
			original: "a = 1",
			fixed:    "a = 1\n",
		},
		{
			name:     "crlf original",
			original: "a = 1\r\nb = 0\r\n",
			fixed:    "a = 1\nb = 9\n",
		},
		{
			name:     "fixed becomes empty",
			original: "a = 1\nb = 2",
			fixed:    "",
		},
		{
			name:     "original empty",
			original: "",
			fixed:    "a = 1\nb = 2",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, edits, err := Compute(tc.original, tc.fixed)
			require.NoError(t, err)

			got := ApplyLineEdits(tc.original, edits)
			assert.Equal(t, normalize(tc.fixed), got)
		})
	}
}

func TestApplyLineEditsNoEdits(t *testing.T) {
	t.Parallel()

	code := "a = 1\nb = 2"
	assert.Equal(t, code, ApplyLineEdits(code, nil))
}

func FuzzLineEditsRoundTrip(f *testing.F) {
	f.Add("x = 1\ny = 0\nprint(x / y)", "x = 1\ny = 2\nprint(x / y)")
	f.Add("", "a\nb")
	f.Add("a\n\nb", "a\nb\n")
	f.Add("line", "line")
	f.Add("a\r\nb", "b\na")

	f.Fuzz(func(t *testing.T, original, fixed string) {
		_, edits, err := Compute(original, fixed)
		if err != nil {
			t.Skip()
		}
		got := ApplyLineEdits(original, edits)
		if got != normalize(fixed) {
			t.Errorf("round trip failed:\noriginal: %q\nfixed: %q\ngot: %q\nedits: %+v", original, fixed, got, edits)
		}
	})
}
