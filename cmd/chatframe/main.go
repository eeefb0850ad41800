// Package main provides the entry point for the chatframe CLI.
package main

import (
	"fmt"
	"os"

	"github.com/chatframe-ai/chatframe/cmd/chatframe/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
