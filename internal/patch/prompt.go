// internal/patch/prompt.go
package patch

import (
	"fmt"

	"github.com/opsmedic/codemedic/api/schemas"
)

// buildSystemPrompt instructs the model to behave as a deterministic
// code-fixing tool and states the sandbox constraints the corrected script
// will re-run under, so fixes stay environment-compatible. JSON mode is
// forced on the request, but the format contract is restated here because
// smaller local models drift without it.
func buildSystemPrompt(limits schemas.ResourceLimits) string {
	return fmt.Sprintf(`You are an expert Python debugging assistant. You receive a broken Python script together with the error produced when it ran. Your job is to return a corrected version of the COMPLETE script.

The corrected script will re-run inside a restricted sandbox:
- NO network access. Any code that opens sockets or fetches URLs will fail.
- NO third-party packages can be installed (pip is disabled). Use ONLY the Python standard library.
- Hard memory cap of %d MiB; the process is killed if it allocates more.
- Hard wall-clock limit of %s; the run is force-terminated after that.

Rules:
1. Return the ENTIRE corrected script, not a fragment or a diff.
2. Preserve the original intent and structure; change only what is needed to fix the error.
3. Do not add new external dependencies.
4. Do not wrap the code in markdown fences.

Respond with a single JSON object in exactly this shape:
{
  "fixed_code": "<the complete corrected script>",
  "explanation": "<one or two sentences describing the fix>",
  "reasoning": "<brief diagnosis of the root cause>"
}`, limits.MemoryBytes/(1024*1024), limits.Timeout)
}

// buildUserPrompt assembles the per-iteration prompt from the failing
// artifact and its execution evidence.
func buildUserPrompt(art schemas.CodeArtifact, res schemas.ExecutionResult) string {
	return fmt.Sprintf(`The following Python script failed on repair iteration %d.

Error type: %s

Stack trace:
%s

Script:
%s

Fix the script and respond with the JSON object described in your instructions.`,
		art.Iteration, res.ErrorType, res.StackTrace, art.Source)
}
