package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mintforge/cmd/mintforge/commands"
	"mintforge/internal/config"
	"mintforge/internal/mint"
)

func main() {
	err := commands.Execute()
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "error:", err)

	var cancel *mint.CancelledError
	if errors.As(err, &cancel) || errors.Is(err, context.Canceled) {
		os.Exit(130)
	}
	var cfgErr *config.ValidationError
	if errors.As(err, &cfgErr) {
		os.Exit(1)
	}
	var runErr *commands.RunFailedError
	if errors.As(err, &runErr) {
		os.Exit(2)
	}
	os.Exit(3)
}
