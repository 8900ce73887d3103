// cmd/layerdeck/main.go
//
// Entry point for the layerdeck CLI. Without a subcommand it opens the
// terminal UI on the document configured for the current directory.

package main

import (
	"fmt"
	"os"

	"github.com/kingrea/layerdeck/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
