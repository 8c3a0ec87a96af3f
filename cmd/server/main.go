// Command server runs the document API: the synthesized table endpoints,
// organization management, blob upload/download, and health checks.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/forgekit/forge-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		log.Fatalf("server: %v", err)
	}
}
