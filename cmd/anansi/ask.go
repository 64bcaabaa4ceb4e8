package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question over ingested documents",
	Long: `Ask runs hybrid retrieval for the question and synthesizes an
answer citing the retrieved passages. When the answer backend is down
the retrieved passages are printed without synthesized text.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	instance, cleanup, err := openInstance(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := instance.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, result)
	}

	if result.Text != "" {
		cmd.Println(result.Text)
		cmd.Println()
	} else if result.Degraded {
		cmd.PrintErrln("warning: answer synthesis unavailable, showing retrieved passages only")
	}

	if len(result.Chunks) == 0 {
		cmd.Println("No supporting passages found.")
		return nil
	}
	cmd.Println("Sources:")
	for i, c := range result.Chunks {
		cmd.Printf("  [%d] doc=%s chunk=%s\n", i+1, c.DocumentID, c.ChunkID)
		cmd.Printf("      %s\n", excerpt(c.Text, 160))
	}
	return nil
}
