// Command relquery-schemadump writes the entity model relquery would serve
// as YAML. The output can be edited and fed back through schema.file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"relquery/internal/config"
	"relquery/internal/logging"
	"relquery/internal/serverapp"

	"github.com/spf13/cobra"
)

var outputFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "relquery-schemadump",
		Short:         "Write the relquery entity model as YAML",
		Long:          `relquery-schemadump introspects the configured database (or reads the schema file) and prints the tables, columns, keys and relations relquery would expose.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}
	config.DefineFlags(cmd.Flags())
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadFlags(cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if result := cfg.Validate(); result.HasErrors() {
		return fmt.Errorf("configuration validation failed: %s", result.Error())
	}

	logger := logging.NewLogger(logging.Config{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cmd.ErrOrStderr(),
	})

	var out io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() {
			if err := f.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to close output file: %v\n", err)
			}
		}()
		out = f
	}

	return serverapp.DumpSchema(context.Background(), cfg, logger, out)
}
