// internal/patch/generator.go

// Package patch turns a failed execution into a proposed fix. The primary
// path asks a language model for a corrected script; when the model is
// unavailable, times out, or returns garbage, a deterministic rule table
// takes over so the repair loop always gets a patch back.
package patch

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
	"github.com/opsmedic/codemedic/internal/config"
	"github.com/opsmedic/codemedic/internal/llmutil"
)

// aiFix is the document the model is instructed to return.
type aiFix struct {
	FixedCode   string `json:"fixed_code"`
	Explanation string `json:"explanation"`
	Reasoning   string `json:"reasoning"`
}

// Generator implements schemas.PatchGenerator. A nil client skips the AI
// path entirely and runs rule-based only.
type Generator struct {
	client       schemas.LLMClient
	cfg          config.RepairConfig
	systemPrompt string
	logger       *zap.Logger
}

var _ schemas.PatchGenerator = (*Generator)(nil)

// NewGenerator builds a patch generator backed by the given model client.
// The sandbox limits are baked into the system prompt so the model is told
// the exact environment its fix must run under.
func NewGenerator(client schemas.LLMClient, cfg config.RepairConfig, limits schemas.ResourceLimits, logger *zap.Logger) *Generator {
	return &Generator{
		client:       client,
		cfg:          cfg,
		systemPrompt: buildSystemPrompt(limits),
		logger:       logger.Named("patch"),
	}
}

// Generate proposes a fix for the failing artifact. It never returns an
// error: any AI-path failure routes to the fallback rules, and a fallback
// with no applicable rule returns a no-change patch, which the caller
// recognizes as non-recoverable.
func (g *Generator) Generate(ctx context.Context, art schemas.CodeArtifact, res schemas.ExecutionResult) schemas.PatchRecord {
	start := time.Now()

	if g.client != nil {
		if rec, ok := g.generateAI(ctx, art, res); ok {
			rec.GenerationTime = time.Since(start)
			return rec
		}
		g.logger.Warn("AI patch generation failed, using rule-based fallback",
			zap.Int("iteration", art.Iteration),
			zap.String("error_type", string(res.ErrorType)),
		)
	}

	rec := generateFallback(art, res)
	rec.GenerationTime = time.Since(start)
	return rec
}

// generateAI runs one bounded model call and validates its output. The
// generation timeout is a hard deadline: a slow model must not stall the
// repair loop past its budget.
func (g *Generator) generateAI(ctx context.Context, art schemas.CodeArtifact, res schemas.ExecutionResult) (schemas.PatchRecord, bool) {
	genCtx, cancel := context.WithTimeout(ctx, g.cfg.GenerationTimeout)
	defer cancel()

	raw, err := g.client.Generate(genCtx, schemas.GenerationRequest{
		SystemPrompt: g.systemPrompt,
		UserPrompt:   buildUserPrompt(art, res),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		g.logger.Warn("Model call failed", zap.Error(err))
		return schemas.PatchRecord{}, false
	}

	fix, err := llmutil.ParseJSONResponse[aiFix](raw)
	if err != nil {
		g.logger.Warn("Model returned unparseable response", zap.Error(err))
		return schemas.PatchRecord{}, false
	}

	fixedCode := llmutil.NormalizeGeneratedCode(fix.FixedCode)
	if fixedCode == "" {
		g.logger.Warn("Model returned an empty fixed_code field")
		return schemas.PatchRecord{}, false
	}

	return schemas.PatchRecord{
		OriginalCode: art.Source,
		FixedCode:    fixedCode,
		Explanation:  fix.Explanation,
		Reasoning:    fix.Reasoning,
		Source:       schemas.PatchSourceAI,
	}, true
}
