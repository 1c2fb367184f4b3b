package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/entrole/internal/dataset"
	"github.com/ppiankov/entrole/internal/pipeline"
	"github.com/ppiankov/entrole/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	batchOut     string
	batchTimeout time.Duration
	unlabelled   bool
	sampleSize   int
	splitRatio   float64
	seed         uint64
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <queries.txt>",
	Short: "Classify a file of queries in parallel and write a dataset",
	Long: `Batch builds a JSONL dataset from a query file (one query per line):
- Optionally sample N queries and split them into train/validation sets
- Classify queries in parallel; every model call shares one pacer
- Write labelled records {input, output, format_output, legacy?} and a
  readable .view.json companion

With --unlabelled only the NER service is called and records carry the
normalized input alone.

Example:
  entrole batch queries.txt --out gold.jsonl
  entrole batch queries.txt --out data.jsonl --sample 500 --split 0.8 --seed 7
  entrole batch queries.txt --out tasks.jsonl --unlabelled`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().StringVar(&batchOut, "out", "", "output .jsonl path")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 2*time.Hour, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&unlabelled, "unlabelled", false, "only normalize entities, do not call models")
	batchCmd.Flags().IntVar(&sampleSize, "sample", 0, "randomly sample this many queries (0 keeps all)")
	batchCmd.Flags().Float64Var(&splitRatio, "split", 0, "train fraction for a train/validation split (0 disables)")
	batchCmd.Flags().Uint64Var(&seed, "seed", 0, "random seed for sampling and splitting (0 picks one)")
	_ = batchCmd.MarkFlagRequired("out")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	if !strings.HasSuffix(batchOut, ".jsonl") {
		return fmt.Errorf("%s: %w", batchOut, dataset.ErrNotJSONL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Concurrency.Workers = concurrency
	}
	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	queries, err := worker.ReadQueriesFromFile(file)
	if err != nil {
		return err
	}

	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	queries = dataset.SampleQueries(queries, sampleSize, rng)

	var p *pipeline.Pipeline
	if !unlabelled {
		p, err = pipeline.New(cfg, pipeline.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("create pipeline: %w", err)
		}
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  entrole batch\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Queries:      %d\n", len(queries))
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Output:       %s\n", batchOut)
	fmt.Fprintf(os.Stderr, "  Seed:         %d\n", seed)
	if unlabelled {
		fmt.Fprintf(os.Stderr, "  Mode:         unlabelled (NER only)\n")
	} else {
		fmt.Fprintf(os.Stderr, "  Generation:   %s/%s\n", cfg.LLM.Generation.Provider, cfg.LLM.Generation.Model)
		fmt.Fprintf(os.Stderr, "  Correction:   %s/%s\n", cfg.LLM.Correction.Provider, cfg.LLM.Correction.Model)
		fmt.Fprintf(os.Stderr, "  Pacing:       %v between model calls\n", p.PacerInterval())
	}
	fmt.Fprintf(os.Stderr, "\n")

	sets := map[string][]string{batchOut: queries}
	if splitRatio > 0 {
		train, val := dataset.Split(queries, splitRatio, rng)
		base := strings.TrimSuffix(batchOut, ".jsonl")
		sets = map[string][]string{
			base + "_train.jsonl": train,
			base + "_val.jsonl":   val,
		}
	}

	if unlabelled {
		prep := pipeline.NewPreparer(cfg, pipeline.Options{Logger: logger})
		for path, set := range sets {
			if err := writeUnlabelled(ctx, prep, path, set, cfg.Concurrency.Workers); err != nil {
				return err
			}
		}
		return nil
	}

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers)

	for path, set := range sets {
		if err := writeLabelled(ctx, processor, path, set); err != nil {
			return err
		}
	}
	return nil
}

func writeLabelled(ctx context.Context, processor *worker.BatchProcessor, path string, queries []string) error {
	fmt.Fprintf(os.Stderr, "⚙️  Classifying %d queries for %s...\n", len(queries), path)

	results := processor.ProcessQueries(ctx, queries)

	records := make([]dataset.Labelled, 0, len(results))
	for _, result := range results {
		if result.Error != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Query, result.Error)
			continue
		}
		rec, ok := dataset.LabelledFromRun(result.Run)
		if !ok {
			continue
		}
		records = append(records, rec)
		if verbose {
			fmt.Fprintf(os.Stderr, "✓ %s → %s\n", result.Query, rec.Output)
		}
	}

	if err := dataset.WriteLabelled(path, records); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}

	s := worker.Summarize(results)
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete: %s\n", path)
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:      %d queries\n", s.Total)
	fmt.Fprintf(os.Stderr, "  Labelled:   %d\n", s.Corrected)
	fmt.Fprintf(os.Stderr, "  Revised:    %d\n", s.Changed)
	fmt.Fprintf(os.Stderr, "  No entities: %d\n", s.Empty)
	fmt.Fprintf(os.Stderr, "  Failures:   %d\n", s.Failed)
	fmt.Fprintf(os.Stderr, "  View:       %s\n", dataset.ViewPath(path))
	fmt.Fprintf(os.Stderr, "\n")
	return nil
}

func writeUnlabelled(ctx context.Context, prep *pipeline.Preparer, path string, queries []string, workers int) error {
	fmt.Fprintf(os.Stderr, "⚙️  Normalizing %d queries for %s...\n", len(queries), path)

	prepared := prep.NormalizeQueries(ctx, queries, workers)

	records := make([]dataset.Unlabelled, 0, len(prepared))
	failed := 0
	for _, r := range prepared {
		if r.Error != nil {
			failed++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.Query, r.Error)
			continue
		}
		records = append(records, dataset.Unlabelled{
			Input: dataset.Input{Question: r.Query, Entities: r.Result.Bundle},
		})
	}

	if err := dataset.WriteUnlabelled(path, records); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Wrote %d records to %s (%d failures)\n", len(records), path, failed)
	return nil
}
