// Package main is the entry point for the sqlbridge CLI.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/gandaldf/sqlbridge/cmd/sqlbridge/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := commands.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
