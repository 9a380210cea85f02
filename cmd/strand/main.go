// Package main provides the entry point for the strand CLI.
package main

import (
	"os"

	"github.com/strand-search/strand/cmd/strand/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
