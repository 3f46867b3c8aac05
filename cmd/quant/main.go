package main

import (
	"os"

	"github.com/wonny/aegis-signals/cmd/quant/commands"
)

// main is the entry point for the signal CLI
// ⭐ Single CLI entry point: go run ./cmd/quant [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
