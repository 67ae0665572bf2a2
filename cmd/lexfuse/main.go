// Package main provides the entry point for the lexfuse CLI.
package main

import (
	"os"

	"github.com/lexfuse/lexfuse/cmd/lexfuse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
