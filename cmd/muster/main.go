// Package main is the entry point for the Muster CLI
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloud-shuttle/muster/internal/config"
)

var cfg *config.Config

func main() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "muster",
		Short: "Herd tracker issues into reviewed pull requests",
		Long: `Muster is an autonomous agent orchestrator. It watches an issue tracker,
plans assigned issues with an AI coding agent, asks for clarification or
approval when needed, implements approved plans step by step, and lands the
result as a pull request it has self-reviewed.`,
		Version: "0.1.0",
	}

	rootCmd.AddCommand(
		serveCmd(),
		statusCmd(),
		issuesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
