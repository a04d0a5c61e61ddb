// internal/store/store.go

// Package store persists completed repair sessions to PostgreSQL. It is
// optional: the CLI only constructs a Store when a database URL is
// configured, and the repair loop itself never depends on it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// DBPool abstracts pgxpool.Pool so tests can substitute a mock.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Store provides the PostgreSQL-backed session archive.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS repair_sessions (
    id               TEXT PRIMARY KEY,
    original_code    TEXT NOT NULL,
    final_code       TEXT NOT NULL,
    terminal_state   TEXT NOT NULL,
    failure_reason   TEXT NOT NULL DEFAULT '',
    total_iterations INT NOT NULL,
    started_at       TIMESTAMPTZ NOT NULL,
    completed_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS session_executions (
    session_id  TEXT NOT NULL REFERENCES repair_sessions(id) ON DELETE CASCADE,
    seq         INT NOT NULL,
    success     BOOLEAN NOT NULL,
    stdout      TEXT NOT NULL DEFAULT '',
    error_type  TEXT NOT NULL DEFAULT '',
    stack_trace TEXT NOT NULL DEFAULT '',
    duration_ms BIGINT NOT NULL,
    PRIMARY KEY (session_id, seq)
);
CREATE TABLE IF NOT EXISTS session_patches (
    session_id         TEXT NOT NULL REFERENCES repair_sessions(id) ON DELETE CASCADE,
    seq                INT NOT NULL,
    source             TEXT NOT NULL,
    fixed_code         TEXT NOT NULL,
    unified_diff       TEXT NOT NULL DEFAULT '',
    line_edits         JSONB NOT NULL DEFAULT '[]',
    explanation        TEXT NOT NULL DEFAULT '',
    reasoning          TEXT NOT NULL DEFAULT '',
    generation_time_ms BIGINT NOT NULL,
    PRIMARY KEY (session_id, seq)
);
`

// EnsureSchema creates the session tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// SaveSession writes one sealed session and its history atomically.
func (s *Store) SaveSession(ctx context.Context, sess *schemas.RepairSession) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	const insertSession = `
        INSERT INTO repair_sessions (id, original_code, final_code, terminal_state, failure_reason, total_iterations, started_at, completed_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	_, err = tx.Exec(ctx, insertSession,
		sess.ID, sess.OriginalCode, sess.FinalCode,
		string(sess.TerminalState), sess.FailureReason, sess.TotalIterations,
		sess.StartedAt.UTC(), sess.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	if err := s.persistExecutions(ctx, tx, sess); err != nil {
		return err
	}
	if err := s.persistPatches(ctx, tx, sess); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) persistExecutions(ctx context.Context, tx pgx.Tx, sess *schemas.RepairSession) error {
	if len(sess.Executions) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(sess.Executions))
	for i, e := range sess.Executions {
		rows[i] = []interface{}{
			sess.ID, i, e.Success, e.Stdout,
			string(e.ErrorType), e.StackTrace,
			e.Duration.Milliseconds(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"session_executions"},
		[]string{"session_id", "seq", "success", "stdout", "error_type", "stack_trace", "duration_ms"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy executions: %w", err)
	}
	if int(copyCount) != len(sess.Executions) {
		return fmt.Errorf("mismatch in copied execution count: expected %d, got %d", len(sess.Executions), copyCount)
	}
	return nil
}

func (s *Store) persistPatches(ctx context.Context, tx pgx.Tx, sess *schemas.RepairSession) error {
	if len(sess.Patches) == 0 {
		return nil
	}

	rows := make([][]interface{}, len(sess.Patches))
	for i, p := range sess.Patches {
		edits, err := jsonAPI.Marshal(p.LineEdits)
		if err != nil {
			return fmt.Errorf("failed to marshal line edits for patch %d: %w", i, err)
		}
		if p.LineEdits == nil {
			edits = []byte("[]")
		}

		rows[i] = []interface{}{
			sess.ID, i, string(p.Source), p.FixedCode,
			p.UnifiedDiff, edits,
			p.Explanation, p.Reasoning,
			p.GenerationTime.Milliseconds(),
		}
	}

	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"session_patches"},
		[]string{"session_id", "seq", "source", "fixed_code", "unified_diff", "line_edits", "explanation", "reasoning", "generation_time_ms"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy patches: %w", err)
	}
	if int(copyCount) != len(sess.Patches) {
		return fmt.Errorf("mismatch in copied patch count: expected %d, got %d", len(sess.Patches), copyCount)
	}
	return nil
}

// GetSession loads a sealed session with its full history.
func (s *Store) GetSession(ctx context.Context, id string) (*schemas.RepairSession, error) {
	const sessionQuery = `
        SELECT id, original_code, final_code, terminal_state, failure_reason, total_iterations, started_at, completed_at
        FROM repair_sessions
        WHERE id = $1;
    `
	var sess schemas.RepairSession
	var state string
	err := s.pool.QueryRow(ctx, sessionQuery, id).Scan(
		&sess.ID, &sess.OriginalCode, &sess.FinalCode,
		&state, &sess.FailureReason, &sess.TotalIterations,
		&sess.StartedAt, &sess.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session %s not found: %w", id, err)
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	sess.TerminalState = schemas.TerminalState(state)

	if sess.Executions, err = s.loadExecutions(ctx, id); err != nil {
		return nil, err
	}
	if sess.Patches, err = s.loadPatches(ctx, id, sess.OriginalCode); err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) loadExecutions(ctx context.Context, id string) ([]schemas.ExecutionResult, error) {
	const query = `
        SELECT success, stdout, error_type, stack_trace, duration_ms
        FROM session_executions
        WHERE session_id = $1
        ORDER BY seq ASC;
    `
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var results []schemas.ExecutionResult
	for rows.Next() {
		var e schemas.ExecutionResult
		var errType string
		var durationMS int64
		if err := rows.Scan(&e.Success, &e.Stdout, &errType, &e.StackTrace, &durationMS); err != nil {
			return nil, fmt.Errorf("failed to scan execution row: %w", err)
		}
		e.ErrorType = schemas.ErrorType(errType)
		e.Duration = millisecondsToDuration(durationMS)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during execution row iteration: %w", err)
	}
	return results, nil
}

func (s *Store) loadPatches(ctx context.Context, id, originalCode string) ([]schemas.PatchRecord, error) {
	const query = `
        SELECT seq, source, fixed_code, unified_diff, line_edits, explanation, reasoning, generation_time_ms
        FROM session_patches
        WHERE session_id = $1
        ORDER BY seq ASC;
    `
	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query patches: %w", err)
	}
	defer rows.Close()

	// Each patch's original is the previous patch's fixed code; the first
	// patch starts from the session's original.
	prior := originalCode

	var patches []schemas.PatchRecord
	for rows.Next() {
		var p schemas.PatchRecord
		var seq int
		var source string
		var edits []byte
		var generationMS int64
		if err := rows.Scan(&seq, &source, &p.FixedCode, &p.UnifiedDiff, &edits, &p.Explanation, &p.Reasoning, &generationMS); err != nil {
			return nil, fmt.Errorf("failed to scan patch row: %w", err)
		}
		if len(edits) > 0 {
			if err := jsonAPI.Unmarshal(edits, &p.LineEdits); err != nil {
				return nil, fmt.Errorf("failed to unmarshal line edits for patch %d: %w", seq, err)
			}
		}
		p.Source = schemas.PatchSource(source)
		p.GenerationTime = millisecondsToDuration(generationMS)
		p.OriginalCode = prior
		prior = p.FixedCode
		patches = append(patches, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during patch row iteration: %w", err)
	}
	return patches, nil
}

func millisecondsToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
