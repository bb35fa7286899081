// Package main provides the routegen CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/ria-19/routegen/cli"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	planPath string
	dbPath   string
	verbose  bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "routegen",
		Short: "Synthetic tool-routing dataset generator",
		Long: `Generates (query, reasoning, tool call) training triples by sampling
LLM backends, validating every candidate against the tool schema and
domain rules, and deduplicating by content fingerprint.

Commands:
- generate: run the pipeline and persist the dataset
- audit:    re-validate a persisted dataset against current thresholds
- split:    cut stratified train/validation files in chat format`,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&planPath, "plan", "", "Generation plan YAML (built-in plan when empty)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", ".routegen/routegen.db", "Database path for dataset storage")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output")

	rootCmd.AddCommand(generateCmd())
	rootCmd.AddCommand(auditCmd())
	rootCmd.AddCommand(splitCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func opts() cli.Options {
	return cli.Options{
		PlanPath: planPath,
		DBPath:   dbPath,
		Verbose:  verbose,
	}
}

func generateCmd() *cobra.Command {
	var outPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the generation pipeline",
		Long: `Run the full pipeline: schedule tasks across intent buckets, fan them
out to the backend pool, validate and deduplicate candidates, and
persist accepted examples to the JSONL dataset and the database.

Scale and thresholds come from environment variables
(ROUTEGEN_TARGET_TOTAL, ROUTEGEN_WORKERS, MIN_THOUGHT_WORDS, ...);
domains, personas and backends come from the plan file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Generate(context.Background(), outPath, opts())
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "dataset.jsonl", "Output dataset file (JSON Lines)")

	return cmd
}

func auditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit [dataset]",
		Short: "Re-validate a persisted dataset",
		Long: `Re-validate every record of a JSONL dataset against the current
thresholds and verify each one round-trips through the chat template.
Exits non-zero when any record fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Audit(context.Background(), args[0], opts())
		},
	}

	return cmd
}

func splitCmd() *cobra.Command {
	var trainPath string
	var valPath string
	var valFraction float64
	var seed int64

	cmd := &cobra.Command{
		Use:   "split [dataset]",
		Short: "Cut stratified train/validation files",
		Long: `Render a JSONL dataset through the chat template and split it into
train and validation files. The split is stratified by output status
so tool-call and direct-answer examples keep the same ratio on both
sides.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Split(context.Background(), args[0], trainPath, valPath, valFraction, seed, opts())
		},
	}

	cmd.Flags().StringVar(&trainPath, "train", "train.jsonl", "Training split output file")
	cmd.Flags().StringVar(&valPath, "val", "val.jsonl", "Validation split output file")
	cmd.Flags().Float64Var(&valFraction, "val-fraction", 0.1, "Share of each stratum held out for validation")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Shuffle seed for reproducible splits")

	return cmd
}
