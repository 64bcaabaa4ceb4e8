package main

import (
	"github.com/spf13/cobra"

	"github.com/anansi-ai/anansi/internal/types"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <document-id>",
	Short: "Delete a document and everything derived from it",
	Long: `Delete removes the document node, its chunks, its vector records,
and any entities no other document mentions.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	instance, cleanup, err := openInstance(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := instance.Delete(ctx, types.ID(args[0]))
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, result)
	}
	cmd.Printf("deleted doc=%s chunks=%d entities=%d\n", args[0],
		result.ChunksDeleted, result.EntitiesDeleted)
	return nil
}
