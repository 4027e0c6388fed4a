// Command forge generates apps from natural-language requests and runs
// multi-step implementation plans.
//
// Usage:
//
//	export OPENAI_API_KEY=... GEMINI_API_KEY=...
//	forge serve --config forge.yaml
//	forge generate --query "todo app" --stream
//	forge plan --file plan.json --out ./app
//	forge actions --file reply.txt --run
//	forge mcp
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
