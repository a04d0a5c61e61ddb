// internal/llmutil/parser_test.go
package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleFix struct {
	FixedCode   string `json:"fixed_code"`
	Explanation string `json:"explanation"`
}

func TestParseJSONResponse(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		input       string
		want        sampleFix
		expectError bool
	}{
		{
			name:  "bare JSON object",
			input: `{"fixed_code": "print(1)", "explanation": "fine"}`,
			want:  sampleFix{FixedCode: "print(1)", Explanation: "fine"},
		},
		{
			name:  "fenced JSON object",
			input: "```json\n{\"fixed_code\": \"x = 1\", \"explanation\": \"assign\"}\n```",
			want:  sampleFix{FixedCode: "x = 1", Explanation: "assign"},
		},
		{
			name:  "object embedded in prose",
			input: "Sure! Here is the fix you asked for:\n{\"fixed_code\": \"y = 2\", \"explanation\": \"done\"}\nLet me know if it works.",
			want:  sampleFix{FixedCode: "y = 2", Explanation: "done"},
		},
		{
			name:        "empty body",
			input:       "",
			expectError: true,
		},
		{
			name:        "non-code noise",
			input:       "I am unable to help with that request.",
			expectError: true,
		},
		{
			name:        "truncated JSON",
			input:       `{"fixed_code": "pri`,
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseJSONResponse[sampleFix](tc.input)
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, *got)
		})
	}
}

func TestCleanCodeOutput(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{"no fences", "print(2+2)", "print(2+2)"},
		{"python fence", "```python\nprint(2+2)\n```", "print(2+2)"},
		{"anonymous fence", "```\nx = 1\ny = 2\n```", "x = 1\ny = 2"},
		{"surrounding whitespace", "  \n```python\nprint(0)\n```\n ", "print(0)"},
		{"empty after stripping", "```python\n```", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, CleanCodeOutput(tc.input))
		})
	}
}

func TestUnescapeModelText(t *testing.T) {
	t.Parallel()

	t.Run("collapses double-encoded body", func(t *testing.T) {
		t.Parallel()
		in := `x = 1\ny = 2\nprint(\"done\")`
		assert.Equal(t, "x = 1\ny = 2\nprint(\"done\")", UnescapeModelText(in))
	})

	t.Run("leaves multi-line code untouched", func(t *testing.T) {
		t.Parallel()
		// The \n here is a legitimate Python string literal, not encoding
		// residue, because the body already spans real lines.
		in := "print(\"a\\nb\")\nprint(2)"
		assert.Equal(t, in, UnescapeModelText(in))
	})

	t.Run("no escapes is identity", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, "print(1)", UnescapeModelText("print(1)"))
	})
}

func TestNormalizeGeneratedCode(t *testing.T) {
	t.Parallel()

	in := "```python\\nresult = 10 / 2\\nprint(result)\\n```"
	assert.Equal(t, "result = 10 / 2\nprint(result)", NormalizeGeneratedCode(in))

	assert.Empty(t, NormalizeGeneratedCode("   "))
}
