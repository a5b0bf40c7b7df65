// Package main provides the inkwell CLI process entrypoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rbright/inkwell/internal/app"
)

// shutdownSignals end a listen owner gracefully. SIGHUP covers the
// controlling terminal closing under a foreground owner.
var shutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals...)
	defer stop()

	// The owner may still be flushing the transcript after the first signal.
	// Restoring default handling lets a second one terminate at once.
	go func() {
		<-ctx.Done()
		stop()
	}()

	os.Exit(app.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr))
}
