// Command docqa answers questions from a private document collection using
// retrieval-augmented generation. It provides a CLI interface (via Cobra)
// and an HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/docqa-go/cmd/docqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
