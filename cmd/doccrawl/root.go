package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for doccrawl.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doccrawl",
		Short: "Polite breadth-first crawler that saves documentation sites as markdown",
		Long: `doccrawl crawls a documentation site starting at one URL, stays inside the
site's domain and base path, and saves the main content of each page as a
markdown file with a "Source: <url>" header.

Crawls are bounded by depth and page count, paced by a request delay, and
recorded in a local history database.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", "text", "Log format: text or json")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
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
