// Package main provides the cloudsh entry point.
// cloudsh is an interactive shell for a remote encrypted-storage account.
package main

import (
	"fmt"
	"os"

	"github.com/cloudfs/cloudsh/internal/cli"
	"github.com/cloudfs/cloudsh/internal/util"
)

func main() {
	// Replaced once the configuration is loaded.
	util.InitializeLogger(util.WarnLevel)

	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
