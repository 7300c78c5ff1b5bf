package main

import (
	"os"

	"github.com/wonny/dragon/cmd/dragon/commands"
)

// main is the entry point for the Dragon CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/dragon [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
