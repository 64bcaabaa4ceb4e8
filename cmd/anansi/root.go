package main

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/anansi-ai/anansi/internal/config"
	"github.com/anansi-ai/anansi/internal/core"
)

var (
	configPath string
	jsonOutput bool
)

// timePrecision rounds durations in human-readable output.
const timePrecision = time.Millisecond

var rootCmd = &cobra.Command{
	Use:   "anansi",
	Short: "Anansi - knowledge graph retrieval over your documents",
	Long: `Anansi ingests documents into a knowledge graph and a vector store,
then answers questions with hybrid retrieval: semantic similarity fused
with graph expansion over the entities the documents mention.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command with SIGINT/SIGTERM cancellation.
func Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: built-in defaults)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(healthCmd)
}

// openInstance loads config and constructs the traced facade. The caller
// must Close it.
func openInstance(ctx context.Context) (*core.Traced, func(), error) {
	cfg, err := config.LoadWithDefaults(configPath)
	if err != nil {
		return nil, nil, err
	}
	instance, err := core.New(ctx, cfg, nil)
	if err != nil {
		return nil, nil, err
	}
	traced := core.NewTraced(instance, cfg.Tracing)
	cleanup := func() { _ = traced.Close(context.Background()) }
	return traced, cleanup, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns file contents, or stdin when path is "-".
func readInput(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
