// internal/patch/fallback.go
package patch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/opsmedic/codemedic/api/schemas"
)

var (
	// tracebackLineRegex locates the failing line number in a CPython
	// traceback. The last frame is the innermost and the one to patch.
	tracebackLineRegex = regexp.MustCompile(`File "[^"]*", line (\d+)`)

	undefinedNameRegex = regexp.MustCompile(`name '([^']+)' is not defined`)
	missingModuleRegex = regexp.MustCompile(`No module named '([^']+)'`)
	importFromRegex    = regexp.MustCompile(`cannot import name '[^']+' from '([^']+)'`)
)

// generateFallback applies the deterministic rule table keyed on the
// closed error taxonomy. Every arm produces a templated explanation and
// reasoning; arms with no safe rewrite return the code unchanged, which
// the orchestrator reads as non-recoverable.
func generateFallback(art schemas.CodeArtifact, res schemas.ExecutionResult) schemas.PatchRecord {
	rec := schemas.PatchRecord{
		OriginalCode: art.Source,
		FixedCode:    art.Source,
		Source:       schemas.PatchSourceFallback,
	}

	switch res.ErrorType {
	case schemas.ErrZeroDivision:
		rec.FixedCode, rec.Explanation = wrapOffendingLine(art.Source, res.StackTrace,
			"ZeroDivisionError", "skipped: division by zero")
		rec.Reasoning = "The script divides by zero. Guarding the failing statement lets the rest of the script proceed."

	case schemas.ErrTypeMismatch:
		rec.FixedCode, rec.Explanation = wrapOffendingLine(art.Source, res.StackTrace,
			"TypeError", "skipped: incompatible operand types")
		rec.Reasoning = "The failing statement combines incompatible types. Guarding it avoids the crash without guessing the intended coercion."

	case schemas.ErrIndex:
		rec.FixedCode, rec.Explanation = wrapOffendingLine(art.Source, res.StackTrace,
			"IndexError", "skipped: index out of range")
		rec.Reasoning = "The failing statement indexes past the end of a sequence. Guarding it avoids the crash without guessing the intended bound."

	case schemas.ErrName:
		rec.FixedCode, rec.Explanation = injectPlaceholder(art.Source, res.StackTrace)
		rec.Reasoning = "An identifier is used before any definition. Binding it to a neutral placeholder lets execution continue."

	case schemas.ErrIndentation:
		rec.FixedCode = reindent(art.Source)
		rec.Explanation = "Re-indented the whole script to a uniform 4-space convention."
		rec.Reasoning = "The interpreter rejected inconsistent indentation. Normalizing every line to 4-space levels removes the ambiguity."

	case schemas.ErrModuleNotFound, schemas.ErrImport:
		rec.FixedCode, rec.Explanation = disableImports(art.Source, res.StackTrace)
		rec.Reasoning = "The import cannot be satisfied in the sandbox, which has no network and no third-party packages. Disabling it is the only safe rewrite."

	case schemas.ErrSyntax:
		rec.Explanation = "No automatic rewrite for a syntax error; the script needs manual review."
		rec.Reasoning = "Syntax errors have no single mechanical fix. Rewriting blindly risks changing the script's meaning."

	default:
		rec.Explanation = fmt.Sprintf("No fallback rule handles error type %q; code left unchanged.", res.ErrorType)
		rec.Reasoning = "The error class is outside the deterministic rule table, so no rewrite is attempted."
	}

	return rec
}

// wrapOffendingLine guards the traceback's innermost line with a
// try/except that prints a sentinel instead of crashing. When the failing
// line cannot be located the code is returned unchanged.
func wrapOffendingLine(source, stackTrace, excName, sentinel string) (string, string) {
	lineNo := offendingLine(stackTrace)
	lines := strings.Split(source, "\n")
	if lineNo < 1 || lineNo > len(lines) {
		return source, fmt.Sprintf("Could not locate the failing line for %s; code left unchanged.", excName)
	}

	target := lines[lineNo-1]
	statement := strings.TrimSpace(target)
	// Only a simple statement can be hoisted into a try body; wrapping a
	// block header would orphan its suite.
	if statement == "" || strings.HasSuffix(statement, ":") {
		return source, fmt.Sprintf("Line %d is not a simple statement; code left unchanged.", lineNo)
	}

	indent := target[:len(target)-len(strings.TrimLeft(target, " \t"))]
	wrapped := []string{
		indent + "try:",
		indent + "    " + statement,
		indent + "except " + excName + ":",
		indent + "    print(\"" + sentinel + "\")",
	}

	out := make([]string, 0, len(lines)+3)
	out = append(out, lines[:lineNo-1]...)
	out = append(out, wrapped...)
	out = append(out, lines[lineNo:]...)

	explanation := fmt.Sprintf("Wrapped line %d in a try/except guard for %s.", lineNo, excName)
	return strings.Join(out, "\n"), explanation
}

// injectPlaceholder binds the undefined identifier to None at the top of
// the script so it is defined before first use.
func injectPlaceholder(source, stackTrace string) (string, string) {
	m := undefinedNameRegex.FindStringSubmatch(stackTrace)
	if m == nil {
		return source, "Could not identify the undefined name; code left unchanged."
	}
	name := m[1]
	fixed := name + " = None  # placeholder injected for undefined name\n" + source
	return fixed, fmt.Sprintf("Defined %q as None before first use.", name)
}

// reindent rewrites every line's leading whitespace to 4-space levels.
// Distinct indent widths map to levels by rank, so relative nesting
// survives even when the original mixed tabs with odd space counts.
func reindent(source string) string {
	lines := strings.Split(source, "\n")

	widths := make([]int, len(lines))
	distinct := make(map[int]struct{})
	for i, line := range lines {
		body := strings.TrimLeft(line, " \t")
		w := 0
		for _, r := range line[:len(line)-len(body)] {
			if r == '\t' {
				w += 4
			} else {
				w++
			}
		}
		widths[i] = w
		if w > 0 && body != "" {
			distinct[w] = struct{}{}
		}
	}

	ranked := make([]int, 0, len(distinct))
	for w := range distinct {
		ranked = append(ranked, w)
	}
	sort.Ints(ranked)
	level := make(map[int]int, len(ranked))
	for rank, w := range ranked {
		level[w] = rank + 1
	}

	for i, line := range lines {
		body := strings.TrimLeft(line, " \t")
		if body == "" {
			lines[i] = ""
			continue
		}
		lines[i] = strings.Repeat("    ", level[widths[i]]) + body
	}
	return strings.Join(lines, "\n")
}

// disableImports comments out import statements referencing the module the
// interpreter could not satisfy.
func disableImports(source, stackTrace string) (string, string) {
	module := ""
	if m := missingModuleRegex.FindStringSubmatch(stackTrace); m != nil {
		module = m[1]
	} else if m := importFromRegex.FindStringSubmatch(stackTrace); m != nil {
		module = m[1]
	}
	if module == "" {
		return source, "Could not identify the unavailable module; code left unchanged."
	}

	// Match "import x", "import x.y", "from x import ..." and the
	// top-level package of dotted forms.
	root := strings.SplitN(module, ".", 2)[0]
	changed := 0
	lines := strings.Split(source, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "import ") && !strings.HasPrefix(trimmed, "from ") {
			continue
		}
		if !referencesModule(trimmed, module) && !referencesModule(trimmed, root) {
			continue
		}
		lines[i] = "# " + line + "  # unavailable in sandbox"
		changed++
	}
	if changed == 0 {
		return source, fmt.Sprintf("Module %q is unavailable but no matching import line was found; code left unchanged.", module)
	}

	explanation := fmt.Sprintf("Commented out %d import line(s) for unavailable module %q. The sandbox has no network and no third-party packages.", changed, module)
	return strings.Join(lines, "\n"), explanation
}

func referencesModule(importLine, module string) bool {
	fields := strings.Fields(importLine)
	if len(fields) < 2 {
		return false
	}
	target := strings.TrimSuffix(fields[1], ",")
	return target == module || strings.HasPrefix(target, module+".")
}

func offendingLine(stackTrace string) int {
	matches := tracebackLineRegex.FindAllStringSubmatch(stackTrace, -1)
	if len(matches) == 0 {
		return 0
	}
	last := matches[len(matches)-1]
	n := 0
	fmt.Sscanf(last[1], "%d", &n)
	return n
}
