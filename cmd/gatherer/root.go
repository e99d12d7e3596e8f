package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for gatherer.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatherer",
		Short: "Polite sitemap crawler with tabular record extraction",
		Long: `gatherer crawls a site starting from its sitemaps, honoring robots.txt
directives and a per-host politeness delay, and extracts statistics
tables into newline-delimited JSON or a SQLite database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
