package main

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/doccrawl/internal/config"
)

//go:embed templates/doccrawl.yaml
var configTemplate embed.FS

const templatePath = "templates/doccrawl.yaml"

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a doccrawl configuration file",
		Long: `Init writes a commented .doccrawl configuration file to the current directory.

The file shows how to set a default content selector and how to give
individual sites their own selector, path prefix, limits, URL patterns
and request headers.

Examples:
  # Create .doccrawl in the current directory
  doccrawl init

  # Create the file somewhere else
  doccrawl init -o ~/.doccrawl

  # Replace an existing file
  doccrawl init -f`,
		Args: cobra.NoArgs,
		RunE: runInitCmd,
	}

	cmd.Flags().StringP("output", "o", config.DefaultConfigFile,
		"Output file path for the configuration")
	cmd.Flags().BoolP("force", "f", false,
		"Overwrite an existing configuration file")

	return cmd
}

func runInitCmd(cmd *cobra.Command, _ []string) error {
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	force, err := cmd.Flags().GetBool("force")
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(outputPath); err == nil {
			return fmt.Errorf("configuration file already exists: %s (use -f to overwrite)", outputPath)
		}
	}

	content, err := configTemplate.ReadFile(templatePath)
	if err != nil {
		return fmt.Errorf("failed to read config template: %w", err)
	}

	dir := filepath.Dir(outputPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}
	if err := os.WriteFile(outputPath, content, 0600); err != nil {
		return fmt.Errorf("failed to write configuration file: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Created configuration file: %s\n", outputPath)
	fmt.Fprintln(out, "\nEdit it to set per-site options such as:")
	fmt.Fprintln(out, "  - the main content selector")
	fmt.Fprintln(out, "  - the base path prefix and crawl limits")
	fmt.Fprintln(out, "  - URL patterns to include or skip")
	return nil
}
