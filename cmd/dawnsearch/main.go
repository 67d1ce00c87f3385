// Package main provides the entry point for the dawnsearch CLI.
package main

import (
	"fmt"
	"os"

	"github.com/dawnsearch/dawnsearch/cmd/dawnsearch/cmd"
	dawnerrors "github.com/dawnsearch/dawnsearch/internal/errors"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprint(os.Stderr, dawnerrors.FormatForCLI(err))
		os.Exit(1)
	}
}
