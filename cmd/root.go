// Package cmd wires the CLI commands for the ingestion service.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notion-ingest",
		Short: "Ingests a hierarchical content tree into a typed content graph.",
		Long: `notion-ingest traverses a Notion-style workspace (nested databases of
categories, books, tags and posts), materializes images and link previews,
and emits a typed content graph for static-site generation.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional, environment variables suffice)")
	cmd.AddCommand(newIngestCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
