package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anansi-ai/anansi/internal/ingest"
)

var (
	ingestSource string
	ingestMeta   []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Ingest documents into the graph and vector store",
	Long: `Ingest reads each file, splits it into chunks, extracts entities,
and writes the result to the knowledge graph and the vector store.
Use "-" to read a single document from stdin (requires --source).

Re-ingesting a source replaces its previous chunks and entities.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "Source identifier (defaults to the file path)")
	ingestCmd.Flags().StringArrayVar(&ingestMeta, "meta", nil, "Document metadata as key=value (repeatable)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	metadata, err := parseMetadata(ingestMeta)
	if err != nil {
		return err
	}
	if len(args) > 1 && ingestSource != "" {
		return fmt.Errorf("--source only applies to a single document")
	}

	instance, cleanup, err := openInstance(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	jobs := make([]ingest.Job, 0, len(args))
	for _, path := range args {
		content, err := readInput(path)
		if err != nil {
			return err
		}
		source := path
		if ingestSource != "" {
			source = ingestSource
		} else if path == "-" {
			return fmt.Errorf("reading from stdin requires --source")
		}
		jobs = append(jobs, ingest.Job{Source: source, Content: content, Metadata: metadata})
	}

	results := instance.IngestBatch(ctx, jobs)

	var failed int
	for _, r := range results {
		if r.Err != nil {
			failed++
			cmd.PrintErrf("%s: %v\n", r.Receipt.Source, r.Err)
			continue
		}
		if jsonOutput {
			if err := printJSON(cmd, r.Receipt); err != nil {
				return err
			}
			continue
		}
		cmd.Printf("%s  %s  doc=%s chunks=%d entities=%d merged=%d relations=%d (%s)\n",
			r.Receipt.Status, r.Receipt.Source, r.Receipt.DocumentID,
			r.Receipt.ChunksCreated, r.Receipt.EntitiesCreated,
			r.Receipt.EntitiesMerged, r.Receipt.RelationsAdded,
			r.Receipt.Duration.Round(timePrecision))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
