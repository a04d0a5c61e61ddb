// internal/sandbox/classify.go
package sandbox

import (
	"regexp"
	"strings"

	"github.com/opsmedic/codemedic/api/schemas"
)

// oomExitCode is what docker reports when the kernel OOM-kills the
// container process (128 + SIGKILL).
const oomExitCode = 137

// exceptionLineRegex matches the final line of a CPython traceback, e.g.
// "ZeroDivisionError: division by zero" or a bare "KeyboardInterrupt".
var exceptionLineRegex = regexp.MustCompile(`(?m)^([A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception|Interrupt|Exit))\b(?::\s*(.*))?$`)

var exceptionTypes = map[string]schemas.ErrorType{
	"ZeroDivisionError":   schemas.ErrZeroDivision,
	"NameError":           schemas.ErrName,
	"UnboundLocalError":   schemas.ErrName,
	"TypeError":           schemas.ErrTypeMismatch,
	"IndexError":          schemas.ErrIndex,
	"ImportError":         schemas.ErrImport,
	"ModuleNotFoundError": schemas.ErrModuleNotFound,
	"IndentationError":    schemas.ErrIndentation,
	"TabError":            schemas.ErrIndentation,
	"SyntaxError":         schemas.ErrSyntax,
	"MemoryError":         schemas.ErrMemory,
}

// Classify maps a failed run's stderr and exit code onto the closed error
// taxonomy. The last exception line in the stderr wins, matching how an
// interpreter reports chained tracebacks. Anything unrecognized becomes
// ErrUnknown with the raw stderr preserved as the stack trace.
func Classify(stderr string, exitCode int) (schemas.ErrorType, string) {
	trace := strings.TrimSpace(stderr)

	matches := exceptionLineRegex.FindAllStringSubmatch(trace, -1)
	if len(matches) > 0 {
		last := matches[len(matches)-1]
		name := last[1]
		// Qualified names like "socket.gaierror" keep only the leaf.
		if idx := strings.LastIndex(name, "."); idx >= 0 {
			name = name[idx+1:]
		}
		if errType, ok := exceptionTypes[name]; ok {
			return errType, trace
		}
		return schemas.ErrUnknown, trace
	}

	// No traceback at all. An OOM kill leaves an empty stderr and the
	// SIGKILL exit code, so classify it by exit status.
	if exitCode == oomExitCode {
		return schemas.ErrMemory, "process killed: memory limit exceeded"
	}

	if trace == "" {
		trace = "process exited non-zero with no diagnostic output"
	}
	return schemas.ErrUnknown, trace
}
