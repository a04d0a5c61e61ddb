// internal/repair/recorder.go
package repair

import (
	"time"

	"github.com/google/uuid"

	"github.com/opsmedic/codemedic/api/schemas"
)

// Recorder accumulates one session's history in iteration order. It is
// owned by the single goroutine driving the loop: entries are append-only,
// and once sealed the session is read-only. Appending after Seal is a
// programming error and panics.
type Recorder struct {
	session schemas.RepairSession
	sealed  bool
}

// NewRecorder opens a session for the given original code.
func NewRecorder(originalCode string) *Recorder {
	return &Recorder{
		session: schemas.RepairSession{
			ID:           uuid.NewString(),
			OriginalCode: originalCode,
			StartedAt:    time.Now().UTC(),
		},
	}
}

// RecordExecution appends one sandbox run to the session.
func (r *Recorder) RecordExecution(res schemas.ExecutionResult) {
	r.mustBeOpen()
	r.session.Executions = append(r.session.Executions, res)
}

// RecordPatch appends one proposed fix to the session.
func (r *Recorder) RecordPatch(p schemas.PatchRecord) {
	r.mustBeOpen()
	r.session.Patches = append(r.session.Patches, p)
}

// Seal closes the session in the given terminal state and returns it. The
// iteration count is the number of sandbox executions that actually ran.
func (r *Recorder) Seal(state schemas.TerminalState, finalCode, failureReason string) *schemas.RepairSession {
	r.mustBeOpen()
	r.sealed = true

	r.session.TerminalState = state
	r.session.FinalCode = finalCode
	r.session.FailureReason = failureReason
	r.session.TotalIterations = len(r.session.Executions)
	r.session.CompletedAt = time.Now().UTC()
	return &r.session
}

func (r *Recorder) mustBeOpen() {
	if r.sealed {
		panic("repair: recorder used after Seal")
	}
}
