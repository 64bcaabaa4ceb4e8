package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/anansi-ai/anansi/internal/search"
)

var (
	searchMode string
	searchTopK int
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search ingested documents",
	Long: `Search retrieves the chunks most relevant to the query.

Modes:
  vector  semantic similarity only
  graph   entity graph expansion only
  hybrid  both legs fused (default)`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchMode, "mode", string(search.ModeHybrid), "Retrieval mode: vector, graph or hybrid")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "Number of results (default from config)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	instance, cleanup, err := openInstance(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := instance.Search(ctx, search.Request{
		Query: strings.Join(args, " "),
		Mode:  search.Mode(searchMode),
		TopK:  searchTopK,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, resp)
	}

	if resp.Degraded {
		cmd.PrintErrln("warning: results are degraded, a retrieval leg failed")
	}
	if len(resp.Results) == 0 {
		cmd.Println("No results.")
		return nil
	}
	for i, c := range resp.Results {
		cmd.Printf("%2d. score=%.4f  [%s]  chunk=%s doc=%s\n", i+1, c.Score,
			strings.Join(c.Sources, "+"), c.ChunkID, c.DocumentID)
		cmd.Printf("    %s\n", excerpt(c.Text, 160))
	}
	return nil
}

// excerpt flattens whitespace and truncates long chunk text for display.
func excerpt(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max] + "..."
}
