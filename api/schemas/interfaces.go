package schemas

import "context"

// ModelTier allows selecting a large language model by capability rather
// than by name.
type ModelTier string

const (
	TierFast     ModelTier = "fast"     // Prefers a faster, potentially less capable model.
	TierPowerful ModelTier = "powerful" // Prefers a more capable, potentially slower model.
)

// GenerationOptions controls the text generation behavior of the LLM.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`       // Controls randomness. Lower is more deterministic.
	ForceJSONFormat bool    `json:"force_json_format"` // If true, forces the model to output valid JSON.
	TopP            float64 `json:"top_p"`
	TopK            int     `json:"top_k"`
}

// GenerationRequest is a complete request to the LLM: system and user
// prompts plus generation options.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient is the inference contract consumed by the patch generator. It
// abstracts the underlying provider (Gemini, Ollama). Unavailability or a
// malformed response is a recoverable failure, never a fatal one.
type LLMClient interface {
	// Generate produces a text completion for the request. It must honor
	// ctx deadlines: the caller enforces the generation timeout.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Ping reports whether the backend is currently reachable.
	Ping(ctx context.Context) error
	// Close releases any resources held by the client.
	Close() error
}

// SandboxRunner executes one code artifact in an isolated, resource-bounded
// context and returns a classified result. Each call spins up and tears
// down its own execution context; no state persists across calls.
//
// Run folds program failures (non-zero exit, timeout, OOM) into the
// ExecutionResult. A non-nil error is reserved for substrate faults such
// as a missing container runtime.
type SandboxRunner interface {
	Run(ctx context.Context, code string, limits ResourceLimits) (ExecutionResult, error)
	// Ping reports whether the isolation substrate is currently usable.
	Ping(ctx context.Context) error
}

// PatchGenerator produces a structured patch for a failing artifact. It is
// only invoked on failed results and must not fail itself: when neither the
// AI backend nor the rule table can produce a usable fix it returns a
// record whose FixedCode equals the original (the no-change signal).
type PatchGenerator interface {
	Generate(ctx context.Context, art CodeArtifact, res ExecutionResult) PatchRecord
}
