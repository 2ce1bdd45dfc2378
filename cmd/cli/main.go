// Package main is the entry point for the imageforge CLI.
// forgectl is the developer terminal tool for interacting with the imageforge API.
package main

import (
	"imageforge/cmd/cli/cmd"
	"os"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
