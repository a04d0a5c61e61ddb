// -- cmd/repair.go --
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opsmedic/codemedic/api/schemas"
	"github.com/opsmedic/codemedic/internal/config"
	"github.com/opsmedic/codemedic/internal/llmclient"
	"github.com/opsmedic/codemedic/internal/observability"
	"github.com/opsmedic/codemedic/internal/patch"
	"github.com/opsmedic/codemedic/internal/repair"
	"github.com/opsmedic/codemedic/internal/sandbox"
	"github.com/opsmedic/codemedic/internal/store"
)

var jsonOut = jsoniter.ConfigCompatibleWithStandardLibrary

func newRepairCommand() *cobra.Command {
	var (
		maxIterations int
		jsonOutput    bool
		outputFile    string
	)

	repairCmd := &cobra.Command{
		Use:   "repair <file>",
		Short: "Run a script in the sandbox and iteratively patch it until it passes.",
		Long: `Executes the given script inside an isolated container, classifies any
failure, generates a patch (model-backed with a rule-based fallback), and
repeats until the script runs cleanly or the iteration budget is spent.
Pass "-" to read the script from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()

			code, err := readSource(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(code) == "" {
				return fmt.Errorf("input script is empty")
			}

			if maxIterations > 0 {
				cfg.Repair.MaxIterations = maxIterations
				if err := cfg.Repair.Validate(); err != nil {
					return fmt.Errorf("invalid repair settings: %w", err)
				}
			}

			client, err := llmclient.NewClient(cfg.LLM, logger)
			if err != nil {
				logger.Warn("Inference backend unavailable, running with rule-based patches only", zap.Error(err))
				client = nil
			} else {
				defer client.Close()
			}

			runner := sandbox.NewDockerRunner(cfg.Sandbox, logger)
			generator := patch.NewGenerator(client, cfg.Repair, cfg.Sandbox.Limits(), logger)
			orchestrator := repair.NewOrchestrator(runner, generator, cfg.Sandbox.Limits(), cfg.Repair.MaxIterations, logger)

			sess, err := orchestrator.Repair(cmd.Context(), code)
			if err != nil {
				return err
			}

			persistSession(cmd, cfg, sess, logger)

			if outputFile != "" {
				if err := os.WriteFile(outputFile, []byte(sess.FinalCode), 0o644); err != nil {
					return fmt.Errorf("failed to write repaired script: %w", err)
				}
			}

			if jsonOutput {
				if err := printSessionJSON(cmd.OutOrStdout(), sess); err != nil {
					return err
				}
			} else {
				printSessionSummary(cmd.OutOrStdout(), sess)
			}

			if sess.TerminalState != schemas.StateSuccess {
				return fmt.Errorf("repair did not converge: %s", sess.FailureReason)
			}
			return nil
		},
	}

	repairCmd.Flags().IntVarP(&maxIterations, "max-iterations", "n", 0, "override the configured iteration budget")
	repairCmd.Flags().BoolVar(&jsonOutput, "json", false, "print the full session record as JSON")
	repairCmd.Flags().StringVarP(&outputFile, "output", "o", "", "write the final code to a file")
	return repairCmd
}

func readSource(arg string) (string, error) {
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read script from stdin: %w", err)
		}
		return string(data), nil
	}

	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read script: %w", err)
	}
	return string(data), nil
}

// persistSession archives the session when a database is configured.
// Persistence is best-effort: a storage failure never changes the repair
// outcome.
func persistSession(cmd *cobra.Command, cfg *config.Config, sess *schemas.RepairSession, logger *zap.Logger) {
	if cfg.Database.URL == "" {
		return
	}
	ctx := cmd.Context()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Warn("Session archive unavailable", zap.Error(err))
		return
	}
	defer pool.Close()

	s, err := store.New(ctx, pool, logger)
	if err != nil {
		logger.Warn("Session archive unreachable", zap.Error(err))
		return
	}
	if err := s.EnsureSchema(ctx); err != nil {
		logger.Warn("Session archive schema setup failed", zap.Error(err))
		return
	}
	if err := s.SaveSession(ctx, sess); err != nil {
		logger.Warn("Failed to archive session", zap.Error(err))
		return
	}
	logger.Info("Session archived", zap.String("session_id", sess.ID))
}

func printSessionJSON(w io.Writer, sess *schemas.RepairSession) error {
	data, err := jsonOut.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printSessionSummary(w io.Writer, sess *schemas.RepairSession) {
	fmt.Fprintf(w, "Session %s: %s after %d iteration(s)\n", sess.ID, sess.TerminalState, sess.TotalIterations)
	if sess.FailureReason != "" {
		fmt.Fprintf(w, "Reason: %s\n", sess.FailureReason)
	}

	for i, exec := range sess.Executions {
		status := "ok"
		if !exec.Success {
			status = string(exec.ErrorType)
		}
		fmt.Fprintf(w, "  iteration %d: %s (%s)\n", i, status, exec.Duration.Round(time.Millisecond))
	}

	for i, p := range sess.Patches {
		fmt.Fprintf(w, "\nPatch %d (%s): %s\n", i, p.Source, p.Explanation)
		if p.UnifiedDiff != "" {
			fmt.Fprintln(w, p.UnifiedDiff)
		}
	}

	if sess.TerminalState == schemas.StateSuccess {
		fmt.Fprintf(w, "\nFinal code:\n%s\n", sess.FinalCode)
		if last := lastExecution(sess); last != nil && last.Stdout != "" {
			fmt.Fprintf(w, "\nOutput:\n%s", last.Stdout)
		}
	}
}

func lastExecution(sess *schemas.RepairSession) *schemas.ExecutionResult {
	if len(sess.Executions) == 0 {
		return nil
	}
	return &sess.Executions[len(sess.Executions)-1]
}
