// Package schemas holds the shared data model for the repair pipeline and
// the interfaces its components are wired together with. Keeping both here
// breaks import cycles between the sandbox, patch, and repair packages.
package schemas

import (
	"time"
)

// ErrorType classifies a failed sandbox run. The set is closed: the sandbox
// executor maps every raw failure signal onto one of these values, and the
// fallback rule table switches on them exhaustively.
type ErrorType string

const (
	ErrZeroDivision   ErrorType = "ZeroDivisionError"
	ErrName           ErrorType = "NameError"
	ErrTypeMismatch   ErrorType = "TypeError"
	ErrIndex          ErrorType = "IndexError"
	ErrImport         ErrorType = "ImportError"
	ErrModuleNotFound ErrorType = "ModuleNotFoundError"
	ErrIndentation    ErrorType = "IndentationError"
	ErrSyntax         ErrorType = "SyntaxError"
	ErrTimeout        ErrorType = "TimeoutError"
	ErrMemory         ErrorType = "MemoryError"
	ErrUnknown        ErrorType = "UnknownError"
)

// CodeArtifact is one immutable revision of the code under repair. The
// orchestrator produces a new artifact at the start of each cycle; an
// artifact is never mutated, only superseded.
type CodeArtifact struct {
	Source    string `json:"source"`
	Iteration int    `json:"iteration"`
}

// ExecutionResult is the outcome of a single sandbox run.
//
// Invariant: Success implies ErrorType and StackTrace are empty; !Success
// implies ErrorType is set (ErrUnknown when the substrate could not
// classify the failure). Use Succeeded/Failed to construct values that
// honor this.
type ExecutionResult struct {
	Success    bool          `json:"success"`
	Stdout     string        `json:"stdout"`
	ErrorType  ErrorType     `json:"error_type,omitempty"`
	StackTrace string        `json:"stack_trace,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Succeeded builds a passing ExecutionResult.
func Succeeded(stdout string, duration time.Duration) ExecutionResult {
	return ExecutionResult{
		Success:  true,
		Stdout:   stdout,
		Duration: duration,
	}
}

// Failed builds a failing ExecutionResult, synthesizing ErrUnknown when the
// caller could not classify the failure.
func Failed(errType ErrorType, stdout, stackTrace string, duration time.Duration) ExecutionResult {
	if errType == "" {
		errType = ErrUnknown
	}
	return ExecutionResult{
		Success:    false,
		Stdout:     stdout,
		ErrorType:  errType,
		StackTrace: stackTrace,
		Duration:   duration,
	}
}

// PatchSource identifies which path produced a patch.
type PatchSource string

const (
	PatchSourceAI       PatchSource = "ai"
	PatchSourceFallback PatchSource = "fallback"
)

// EditOp discriminates the three line-level edit kinds. An explicit op is
// required because empty OldText/NewText alone cannot distinguish an
// inserted blank line from a deleted one.
type EditOp string

const (
	EditReplace EditOp = "replace"
	EditInsert  EditOp = "insert"
	EditDelete  EditOp = "delete"
)

// LineEdit is one changed line, expressed against the original text.
// LineNumber is 1-based in the original. An insert carries an empty
// OldText and lands before the original line it is anchored to
// (LineNumber == len(original)+1 appends at the end). A delete carries an
// empty NewText and removes the original line.
type LineEdit struct {
	Op         EditOp `json:"op"`
	LineNumber int    `json:"line_number"`
	OldText    string `json:"old_text,omitempty"`
	NewText    string `json:"new_text,omitempty"`
}

// PatchRecord is one proposed fix, annotated with its diff and provenance.
type PatchRecord struct {
	OriginalCode   string        `json:"original_code"`
	FixedCode      string        `json:"fixed_code"`
	UnifiedDiff    string        `json:"unified_diff"`
	LineEdits      []LineEdit    `json:"line_edits,omitempty"`
	Explanation    string        `json:"explanation"`
	Reasoning      string        `json:"reasoning"`
	Source         PatchSource   `json:"source"`
	GenerationTime time.Duration `json:"generation_time"`
}

// NoChange reports whether the generator declined to modify the code. The
// orchestrator treats a no-change patch as non-recoverable: re-running the
// same code would repeat the same failure indefinitely.
func (p PatchRecord) NoChange() bool {
	return p.FixedCode == p.OriginalCode
}

// TerminalState is a state from which the repair loop will not resume.
type TerminalState string

const (
	StateSuccess             TerminalState = "Success"
	StateExhaustedIterations TerminalState = "ExhaustedIterations"
	StateNonRecoverable      TerminalState = "NonRecoverable"
)

// RepairSession is the full audit trail of one repair request. It is
// append-only while the loop runs and read-only once TerminalState is set.
type RepairSession struct {
	ID              string            `json:"id"`
	OriginalCode    string            `json:"original_code"`
	FinalCode       string            `json:"final_code"`
	Executions      []ExecutionResult `json:"executions"`
	Patches         []PatchRecord     `json:"patches"`
	TotalIterations int               `json:"total_iterations"`
	TerminalState   TerminalState     `json:"terminal_state"`
	FailureReason   string            `json:"failure_reason,omitempty"`
	StartedAt       time.Time         `json:"started_at"`
	CompletedAt     time.Time         `json:"completed_at"`
}

// ResourceLimits bounds a single sandbox run. NetworkEnabled must stay
// false for untrusted code; it exists only for diagnostic runs.
type ResourceLimits struct {
	MemoryBytes    int64         `json:"memory_bytes"`
	CPUShare       float64       `json:"cpu_share"`
	NetworkEnabled bool          `json:"network_enabled"`
	Timeout        time.Duration `json:"timeout"`
}
