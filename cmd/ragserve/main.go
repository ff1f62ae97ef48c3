// Command ragserve is the entry point for the RAG document service.
// It provides a CLI (via Cobra) with an HTTP API server and an ingestion
// worker that can run embedded or as a separate process.
package main

import (
	"fmt"
	"os"

	"github.com/ragworks/ragserve/cmd/ragserve/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
