// Package main provides the entry point for the codesweep CLI.
package main

import (
	"os"

	"github.com/codesweep/codesweep/cmd/codesweep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
