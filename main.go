package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/auditforge/auditforge/cmd"
)

// main is the entry point for the AuditForge CLI application.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
