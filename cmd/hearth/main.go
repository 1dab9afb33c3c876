// ABOUTME: Entry point for the hearth command-line client
// ABOUTME: Sends queries to a running hearthd over its Unix socket

package main

import (
	"fmt"
	"os"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
