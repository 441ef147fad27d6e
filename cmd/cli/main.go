// Package main is the entry point for sandctl.
// The CLI is the developer terminal tool for interacting with the sandplane API.
package main

import (
	"os"

	"sandplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
