package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check graph and vector store consistency",
	Long: `Reconcile scans the vector store and reports records whose chunk
no longer exists in the graph. It only reports; nothing is modified.`,
	Args: cobra.NoArgs,
	RunE: runReconcile,
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	instance, cleanup, err := openInstance(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := instance.Reconcile(ctx)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(cmd, report)
	}
	cmd.Printf("checked %d vector records in %s\n",
		report.VectorsChecked, report.Duration.Round(timePrecision))
	if report.Consistent() {
		cmd.Println("stores are consistent")
		return nil
	}
	for _, id := range report.OrphanedChunkIDs {
		cmd.Printf("orphaned vector: %s\n", id)
	}
	return fmt.Errorf("%d orphaned vector records", len(report.OrphanedChunkIDs))
}
