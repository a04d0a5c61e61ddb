// -- cmd/status.go --
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/opsmedic/codemedic/internal/llmclient"
	"github.com/opsmedic/codemedic/internal/observability"
	"github.com/opsmedic/codemedic/internal/sandbox"
)

const probeTimeout = 10 * time.Second

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the sandbox runtime and inference backend are reachable.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()

			var sandboxErr, llmErr error
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				runner := sandbox.NewDockerRunner(cfg.Sandbox, logger)
				sandboxErr = runner.Ping(gctx)
				return nil
			})
			g.Go(func() error {
				client, err := llmclient.NewClient(cfg.LLM, logger)
				if err != nil {
					llmErr = err
					return nil
				}
				defer client.Close()
				llmErr = client.Ping(gctx)
				return nil
			})
			// Probe goroutines report through the captured error slots.
			_ = g.Wait()

			printProbe(out, "sandbox", sandboxErr)
			printProbe(out, fmt.Sprintf("inference (%s)", cfg.LLM.Provider), llmErr)

			// A dead inference backend degrades to rule-based patching;
			// a dead sandbox makes repair impossible.
			if sandboxErr != nil {
				return fmt.Errorf("sandbox runtime unreachable")
			}
			return nil
		},
	}
}

func printProbe(w io.Writer, name string, err error) {
	if err != nil {
		fmt.Fprintf(w, "%-20s unavailable: %v\n", name, err)
		return
	}
	fmt.Fprintf(w, "%-20s ok\n", name)
}
