// File: cmd/codemedic/main.go
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/opsmedic/codemedic/cmd"
	"github.com/opsmedic/codemedic/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx)
	observability.Sync()
	stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Graceful shutdown requested by the user.
			os.Exit(130)
		}
		os.Exit(1)
	}
}
