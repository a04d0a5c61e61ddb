// internal/repair/orchestrator.go

// Package repair drives the execute/patch/re-execute loop. The loop is
// strictly sequential and always lands in a terminal state: success, an
// exhausted iteration budget, or a failure the patch table cannot touch.
package repair

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
	"github.com/opsmedic/codemedic/internal/diff"
)

// Orchestrator owns one repair configuration and runs independent
// sessions against it. Limits and the iteration budget are fixed at
// construction; there is no mutable global state.
type Orchestrator struct {
	runner        schemas.SandboxRunner
	generator     schemas.PatchGenerator
	limits        schemas.ResourceLimits
	maxIterations int
	logger        *zap.Logger
}

// NewOrchestrator wires the loop. An iteration budget below one is
// clamped to one so the loop always runs the code at least once.
func NewOrchestrator(runner schemas.SandboxRunner, generator schemas.PatchGenerator, limits schemas.ResourceLimits, maxIterations int, logger *zap.Logger) *Orchestrator {
	if maxIterations < 1 {
		maxIterations = 1
	}
	return &Orchestrator{
		runner:        runner,
		generator:     generator,
		limits:        limits,
		maxIterations: maxIterations,
		logger:        logger.Named("repair"),
	}
}

// Repair runs the loop to a terminal state and returns the sealed
// session. The only error it returns is cancellation of the caller's
// context; every in-domain failure, including a sandbox substrate fault,
// is absorbed into the session history instead.
func (o *Orchestrator) Repair(ctx context.Context, code string) (*schemas.RepairSession, error) {
	recorder := NewRecorder(code)
	current := code

	for i := 0; ; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		artifact := schemas.CodeArtifact{Source: current, Iteration: i}

		result, err := o.runner.Run(ctx, current, o.limits)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Substrate faults still produce a classified result; record
			// it and let the loop decide like any other failure.
			o.logger.Error("Sandbox fault during iteration", zap.Int("iteration", i), zap.Error(err))
		}
		recorder.RecordExecution(result)

		o.logger.Info("Iteration executed",
			zap.Int("iteration", i),
			zap.Bool("success", result.Success),
			zap.String("error_type", string(result.ErrorType)),
			zap.Duration("duration", result.Duration),
		)

		if result.Success {
			return recorder.Seal(schemas.StateSuccess, current, ""), nil
		}

		if i+1 == o.maxIterations {
			reason := fmt.Sprintf("exhausted %d iteration(s) without a passing run; last error type %s", o.maxIterations, result.ErrorType)
			return recorder.Seal(schemas.StateExhaustedIterations, current, reason), nil
		}

		patch := o.generator.Generate(ctx, artifact, result)
		o.annotateDiff(&patch)
		recorder.RecordPatch(patch)

		if patch.NoChange() {
			reason := fmt.Sprintf("no usable patch for error type %s; code unchanged", result.ErrorType)
			return recorder.Seal(schemas.StateNonRecoverable, current, reason), nil
		}

		current = patch.FixedCode
	}
}

// annotateDiff fills in the patch's unified diff and line edits. A diff
// failure is recorded as an empty diff, never a loop failure.
func (o *Orchestrator) annotateDiff(patch *schemas.PatchRecord) {
	unified, edits, err := diff.Compute(patch.OriginalCode, patch.FixedCode)
	if err != nil {
		o.logger.Warn("Diff computation failed", zap.Error(err))
		return
	}
	patch.UnifiedDiff = unified
	patch.LineEdits = edits
}
