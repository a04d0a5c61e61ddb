// internal/repair/recorder_test.go
package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsmedic/codemedic/api/schemas"
)

func TestRecorderAccumulatesInOrder(t *testing.T) {
	t.Parallel()

	r := NewRecorder("print(1/0)")
	r.RecordExecution(failure(schemas.ErrZeroDivision, "ZeroDivisionError: division by zero"))
	r.RecordPatch(schemas.PatchRecord{OriginalCode: "print(1/0)", FixedCode: "print(1)", Source: schemas.PatchSourceFallback})
	r.RecordExecution(success("1\n"))

	sess := r.Seal(schemas.StateSuccess, "print(1)", "")

	require.NotEmpty(t, sess.ID)
	assert.Equal(t, "print(1/0)", sess.OriginalCode)
	assert.Equal(t, "print(1)", sess.FinalCode)
	assert.Equal(t, 2, sess.TotalIterations)
	require.Len(t, sess.Executions, 2)
	assert.False(t, sess.Executions[0].Success)
	assert.True(t, sess.Executions[1].Success)
	assert.Len(t, sess.Patches, 1)
	assert.False(t, sess.StartedAt.IsZero())
	assert.True(t, !sess.CompletedAt.Before(sess.StartedAt))
}

func TestRecorderRejectsAppendsAfterSeal(t *testing.T) {
	t.Parallel()

	r := NewRecorder("print(2+2)")
	r.RecordExecution(success("4\n"))
	r.Seal(schemas.StateSuccess, "print(2+2)", "")

	assert.Panics(t, func() { r.RecordExecution(success("")) })
	assert.Panics(t, func() { r.RecordPatch(schemas.PatchRecord{}) })
	assert.Panics(t, func() { r.Seal(schemas.StateSuccess, "", "") })
}

func TestRecorderSessionIDsAreUnique(t *testing.T) {
	t.Parallel()

	a := NewRecorder("x").Seal(schemas.StateSuccess, "x", "")
	b := NewRecorder("x").Seal(schemas.StateSuccess, "x", "")
	assert.NotEqual(t, a.ID, b.ID)
}
