package main

import (
	"fmt"
	"os"

	aierrors "aictl/internal/errors"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), aierrors.FormatForUser(err))
		os.Exit(1)
	}
}
