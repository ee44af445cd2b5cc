package main

import (
	"os"

	"github.com/wonny/fluxscan/cmd/fluxscan/commands"
)

// main is the entry point for the fluxscan CLI: go run ./cmd/fluxscan [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
