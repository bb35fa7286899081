// Package cli implements the routegen subcommands: wiring settings,
// plan and backends into the pipeline (generate), re-validating a
// persisted dataset (audit), and cutting train/validation splits.
package cli

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/ria-19/routegen/config"
	"github.com/ria-19/routegen/dedup"
	"github.com/ria-19/routegen/format"
	"github.com/ria-19/routegen/llm"
	"github.com/ria-19/routegen/pipeline"
	"github.com/ria-19/routegen/schema"
	"github.com/ria-19/routegen/storage"
	"github.com/ria-19/routegen/validate"
)

// Options carries the global flags into every subcommand.
type Options struct {
	PlanPath string
	DBPath   string
	Verbose  bool
}

// loadPlan returns the plan file when given, the built-in plan otherwise.
func loadPlan(opts Options) (*config.Plan, error) {
	if opts.PlanPath == "" {
		return config.DefaultPlan(), nil
	}
	return config.LoadPlan(opts.PlanPath)
}

// buildValidator assembles the registry and validator from settings.
func buildValidator(settings config.Settings) *validate.Validator {
	rules := schema.DefaultRules()
	rules.MinSearchQueryLen = settings.Validation.MinSearchQueryLen

	cfg := validate.DefaultConfig()
	cfg.MinQueryLen = settings.Validation.MinQueryLen
	cfg.MinThoughtWords = settings.Validation.MinThoughtWords
	cfg.MaxThoughtWords = settings.Validation.MaxThoughtWords
	cfg.MinAnswerLen = settings.Validation.MinAnswerLen
	cfg.ParrotingThreshold = settings.Validation.ParrotingThreshold

	return validate.New(schema.NewRegistry(rules), cfg)
}

// buildBackends constructs a provider for every plan backend whose API
// key is present, skipping the rest with a warning. An empty result is
// an error: a run needs at least one live backend.
func buildBackends(plan *config.Plan, gen config.GenerationConfig) ([]llm.Backend, error) {
	backends := []llm.Backend{}
	for _, spec := range plan.Backends {
		providerType, err := llm.ParseProviderType(spec.Provider)
		if err != nil {
			return nil, fmt.Errorf("backend %s/%s: %w", spec.Provider, spec.Model, err)
		}
		if os.Getenv(providerType.EnvVar()) == "" {
			fmt.Fprintf(os.Stderr, "Warning: skipping %s/%s: %s not set\n",
				spec.Provider, spec.Model, providerType.EnvVar())
			continue
		}
		provider, err := providerType.
			Model(spec.Model).
			MaxTokens(gen.MaxTokens).
			Temperature(float32(gen.Temperature)).
			FromEnv()
		if err != nil {
			return nil, fmt.Errorf("backend %s/%s: %w", spec.Provider, spec.Model, err)
		}
		backends = append(backends, llm.Backend{
			Provider:    provider,
			Weight:      spec.Weight,
			LogicStrong: spec.LogicStrong,
		})
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no usable backends: set an API key for at least one plan backend")
	}
	return backends, nil
}

// Generate runs the full pipeline and writes accepted examples to the
// JSONL dataset and the SQLite store.
func Generate(ctx context.Context, outPath string, opts Options) error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	plan, err := loadPlan(opts)
	if err != nil {
		return err
	}
	backends, err := buildBackends(plan, settings.Generation)
	if err != nil {
		return err
	}

	pool, err := llm.NewPool(backends, nil)
	if err != nil {
		return err
	}

	store, err := storage.OpenDataset(opts.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	jsonl, err := storage.OpenJSONL(outPath)
	if err != nil {
		return err
	}
	defer jsonl.Close()

	// The store backs cross-run dedup; warm the in-memory set so
	// repeats of earlier runs are caught without a database round trip.
	deduplicator := dedup.NewWithStore(store)
	fps, err := store.LoadFingerprints(ctx)
	if err != nil {
		return err
	}
	deduplicator.Warm(fps)

	orchestrator := pipeline.New(
		pool,
		pipeline.NewGenerator(settings.Generation.BatchSize),
		buildValidator(settings),
		deduplicator,
		storage.MultiSink{store, jsonl},
		plan,
		settings.Generation,
	)

	report, runErr := orchestrator.Run(ctx)
	if err := store.SaveRun(ctx, report); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to save run summary: %v\n", err)
	}
	printReport(report, opts.Verbose)
	return runErr
}

func printReport(report pipeline.Report, verbose bool) {
	fmt.Printf("Run %s finished in %s\n", report.RunID, report.Duration.Round(1e7))
	fmt.Printf("  accepted:   %d/%d (shortfall %d)\n", report.Accepted, report.Target, report.Shortfall)
	fmt.Printf("  attempts:   %d (candidates %d, duplicates %d)\n", report.Attempts, report.Candidates, report.Duplicates)
	if len(report.Rejections) > 0 {
		fmt.Println("  rejections:")
		for _, reason := range sortedKeys(report.Rejections) {
			fmt.Printf("    %-24s %d\n", reason, report.Rejections[reason])
		}
	}
	if len(report.BackendErrors) > 0 {
		fmt.Println("  backend errors:")
		for _, kind := range sortedKeys(report.BackendErrors) {
			fmt.Printf("    %-24s %d\n", kind, report.BackendErrors[kind])
		}
	}
	if verbose {
		fmt.Println("  per intent:")
		for _, intent := range sortedKeys(report.PerIntent) {
			fmt.Printf("    %-24s %d\n", intent, report.PerIntent[intent])
		}
		fmt.Println("  per backend:")
		for _, backend := range sortedKeys(report.PerBackend) {
			fmt.Printf("    %-24s %d\n", backend, report.PerBackend[backend])
		}
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Audit re-validates every record in a JSONL dataset against the
// current thresholds and reports per-reason counts. It also verifies
// the chat template round-trips each record unchanged.
func Audit(ctx context.Context, path string, opts Options) error {
	settings, err := config.New()
	if err != nil {
		return err
	}
	validator := buildValidator(settings)

	records, err := storage.ReadJSONL(path)
	if err != nil {
		return err
	}

	reasons := map[validate.Reason]int{}
	renderFailures := 0
	clean := 0
	for i, rec := range records {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		outcome := validator.ValidateExample(rec.Example)
		if !outcome.Accepted() {
			reasons[outcome.Rejection.Reason]++
			if opts.Verbose {
				fmt.Printf("line %d (%s): %v\n", i+1, rec.Fingerprint, outcome.Rejection)
			}
			continue
		}
		if err := roundTrip(rec.Example); err != nil {
			renderFailures++
			if opts.Verbose {
				fmt.Printf("line %d (%s): template round trip: %v\n", i+1, rec.Fingerprint, err)
			}
			continue
		}
		clean++
	}

	fmt.Printf("Audited %d records: %d clean\n", len(records), clean)
	for _, reason := range sortedKeys(reasons) {
		fmt.Printf("  %-24s %d\n", reason, reasons[reason])
	}
	if renderFailures > 0 {
		fmt.Printf("  %-24s %d\n", "template_round_trip", renderFailures)
	}
	if clean < len(records) {
		return fmt.Errorf("%d of %d records failed audit", len(records)-clean, len(records))
	}
	return nil
}

// roundTrip renders and reparses one example, proving the template
// preserves it exactly.
func roundTrip(example *schema.Example) error {
	rendered, err := format.Render(example, format.Options{})
	if err != nil {
		return err
	}
	back, err := format.Reparse(rendered)
	if err != nil {
		return err
	}
	if back.UserQuery != example.UserQuery {
		return fmt.Errorf("user query changed across round trip")
	}
	return nil
}

// Split reads a JSONL dataset and writes stratified train/validation
// files in the fine-tuning chat format.
func Split(_ context.Context, path, trainPath, valPath string, valFraction float64, seed int64, opts Options) error {
	records, err := storage.ReadJSONL(path)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("dataset %s is empty", path)
	}

	result, err := storage.WriteSplit(records, trainPath, valPath, storage.SplitOptions{
		ValFraction: valFraction,
		Seed:        seed,
		AddBOS:      true,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Split %d records: %d train -> %s, %d val -> %s\n",
		len(records), result.Train, trainPath, result.Val, valPath)
	return nil
}
