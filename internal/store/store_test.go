// internal/store/store_test.go
package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/opsmedic/codemedic/api/schemas"
)

// flexibleSQLMatcher builds a whitespace-insensitive regex for SQL mocks.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

const sqlInsertSession = `
        INSERT INTO repair_sessions (id, original_code, final_code, terminal_state, failure_reason, total_iterations, started_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `

func sealedSession() *schemas.RepairSession {
	started := time.Date(2025, 11, 3, 10, 0, 0, 0, time.UTC)
	return &schemas.RepairSession{
		ID:           "sess-1",
		OriginalCode: "print(1/0)",
		FinalCode:    "try:\n    print(1/0)\nexcept ZeroDivisionError:\n    print(\"skipped: division by zero\")",
		Executions: []schemas.ExecutionResult{
			schemas.Failed(schemas.ErrZeroDivision, "", "ZeroDivisionError: division by zero", 40*time.Millisecond),
			schemas.Succeeded("skipped: division by zero\n", 30*time.Millisecond),
		},
		Patches: []schemas.PatchRecord{
			{
				OriginalCode: "print(1/0)",
				FixedCode:    "try:\n    print(1/0)\nexcept ZeroDivisionError:\n    print(\"skipped: division by zero\")",
				UnifiedDiff:  "--- original\n+++ fixed\n",
				LineEdits: []schemas.LineEdit{
					{Op: schemas.EditReplace, LineNumber: 1, OldText: "print(1/0)", NewText: "try:"},
				},
				Explanation:    "Wrapped line 1 in a try/except guard for ZeroDivisionError.",
				Reasoning:      "The script divides by zero.",
				Source:         schemas.PatchSourceFallback,
				GenerationTime: 5 * time.Millisecond,
			},
		},
		TotalIterations: 2,
		TerminalState:   schemas.StateSuccess,
		StartedAt:       started,
		CompletedAt:     started.Add(2 * time.Second),
	}
}

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *Store, *observer.ObservedLogs) {
	t.Helper()

	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	core, logs := observer.New(zapcore.ErrorLevel)
	mockPool.ExpectPing()

	s, err := New(context.Background(), mockPool, zap.New(core))
	require.NoError(t, err)
	return mockPool, s, logs
}

func TestNewStorePingFailure(t *testing.T) {
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mockPool.Close()

	pingErr := errors.New("database unavailable")
	mockPool.ExpectPing().WillReturnError(pingErr)

	_, err = New(context.Background(), mockPool, zap.NewNop())
	require.Error(t, err)
	assert.ErrorIs(t, err, pingErr)
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestEnsureSchema(t *testing.T) {
	mockPool, s, _ := newMockStore(t)

	mockPool.ExpectExec("CREATE TABLE IF NOT EXISTS repair_sessions").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestSaveSession(t *testing.T) {
	ctx := context.Background()

	t.Run("persists session with history and commits", func(t *testing.T) {
		mockPool, s, logs := newMockStore(t)
		sess := sealedSession()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertSession)).
			WithArgs(sess.ID, sess.OriginalCode, sess.FinalCode, "Success", "", 2, sess.StartedAt, sess.CompletedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(
			pgx.Identifier{"session_executions"},
			[]string{"session_id", "seq", "success", "stdout", "error_type", "stack_trace", "duration_ms"},
		).WillReturnResult(2)
		mockPool.ExpectCopyFrom(
			pgx.Identifier{"session_patches"},
			[]string{"session_id", "seq", "source", "fixed_code", "unified_diff", "line_edits", "explanation", "reasoning", "generation_time_ms"},
		).WillReturnResult(1)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback()

		require.NoError(t, s.SaveSession(ctx, sess))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Zero(t, logs.Len(), "a committed transaction must not log rollback errors")
	})

	t.Run("execution copy count mismatch fails the save", func(t *testing.T) {
		mockPool, s, _ := newMockStore(t)
		sess := sealedSession()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertSession)).
			WithArgs(sess.ID, sess.OriginalCode, sess.FinalCode, "Success", "", 2, sess.StartedAt, sess.CompletedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(
			pgx.Identifier{"session_executions"},
			[]string{"session_id", "seq", "success", "stdout", "error_type", "stack_trace", "duration_ms"},
		).WillReturnResult(1)
		mockPool.ExpectRollback()

		err := s.SaveSession(ctx, sess)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied execution count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("begin failure is propagated", func(t *testing.T) {
		mockPool, s, _ := newMockStore(t)

		beginErr := errors.New("connection reset")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err := s.SaveSession(ctx, sealedSession())
		assert.ErrorIs(t, err, beginErr)
	})
}

func TestGetSession(t *testing.T) {
	ctx := context.Background()
	mockPool, s, _ := newMockStore(t)
	want := sealedSession()

	mockPool.ExpectQuery("SELECT id, original_code, final_code").
		WithArgs(want.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "original_code", "final_code", "terminal_state", "failure_reason", "total_iterations", "started_at", "completed_at",
		}).AddRow(
			want.ID, want.OriginalCode, want.FinalCode, "Success", "", 2, want.StartedAt, want.CompletedAt,
		))

	mockPool.ExpectQuery("SELECT success, stdout, error_type, stack_trace, duration_ms").
		WithArgs(want.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"success", "stdout", "error_type", "stack_trace", "duration_ms",
		}).
			AddRow(false, "", "ZeroDivisionError", "ZeroDivisionError: division by zero", int64(40)).
			AddRow(true, "skipped: division by zero\n", "", "", int64(30)))

	mockPool.ExpectQuery("SELECT seq, source, fixed_code").
		WithArgs(want.ID).
		WillReturnRows(pgxmock.NewRows([]string{
			"seq", "source", "fixed_code", "unified_diff", "line_edits", "explanation", "reasoning", "generation_time_ms",
		}).AddRow(
			0, "fallback", want.Patches[0].FixedCode, want.Patches[0].UnifiedDiff,
			[]byte(`[{"op":"replace","line_number":1,"old_text":"print(1/0)","new_text":"try:"}]`),
			want.Patches[0].Explanation, want.Patches[0].Reasoning, int64(5),
		))

	got, err := s.GetSession(ctx, want.ID)
	require.NoError(t, err)
	assert.NoError(t, mockPool.ExpectationsWereMet())

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, schemas.StateSuccess, got.TerminalState)
	require.Len(t, got.Executions, 2)
	assert.Equal(t, schemas.ErrZeroDivision, got.Executions[0].ErrorType)
	assert.Equal(t, 40*time.Millisecond, got.Executions[0].Duration)
	require.Len(t, got.Patches, 1)
	assert.Equal(t, want.OriginalCode, got.Patches[0].OriginalCode, "first patch originates from the session's original code")
	assert.Equal(t, want.Patches[0].LineEdits, got.Patches[0].LineEdits)
	assert.Equal(t, 5*time.Millisecond, got.Patches[0].GenerationTime)
}

func TestGetSessionNotFound(t *testing.T) {
	mockPool, s, _ := newMockStore(t)

	mockPool.ExpectQuery("SELECT id, original_code, final_code").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "original_code", "final_code", "terminal_state", "failure_reason", "total_iterations", "started_at", "completed_at",
		}))

	_, err := s.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
