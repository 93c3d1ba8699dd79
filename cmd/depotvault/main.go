package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "depotvault",
		Short:         "Archive Steam account credentials and depot manifests into a versioned repository",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(runCmd, accountsCmd, pruneCmd, reportCmd)

	if err := root.Execute(); err != nil {
		slog.Error("fatal error", "error", err)
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
