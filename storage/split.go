package storage

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"sort"

	"github.com/ria-19/routegen/format"
	"github.com/ria-19/routegen/pipeline"
	"github.com/ria-19/routegen/schema"
)

// SplitOptions controls the train/validation split.
type SplitOptions struct {
	// ValFraction is the share of each stratum held out for
	// validation. Defaults to 0.1.
	ValFraction float64
	// Seed fixes the shuffle for reproducible splits.
	Seed int64
	// AddBOS is forwarded to the chat-template renderer.
	AddBOS bool
}

// trainingLine is the fine-tuning file format: one rendered chat
// transcript per line.
type trainingLine struct {
	Text string `json:"text"`
}

// SplitResult reports how many examples landed in each file.
type SplitResult struct {
	Train int
	Val   int
}

// WriteSplit renders records through the chat template and writes
// stratified train/validation JSONL files. Stratification is by
// output status, so tool-call and final-answer examples keep the same
// ratio on both sides of the split.
func WriteSplit(records []pipeline.Record, trainPath, valPath string, opts SplitOptions) (SplitResult, error) {
	if opts.ValFraction <= 0 || opts.ValFraction >= 1 {
		opts.ValFraction = 0.1
	}

	strata := map[schema.Status][]pipeline.Record{}
	for _, rec := range records {
		strata[rec.Example.Output.Status] = append(strata[rec.Example.Output.Status], rec)
	}

	// Map iteration order is random; shuffling strata in a fixed order
	// is what makes the seed reproducible.
	statuses := make([]schema.Status, 0, len(strata))
	for status := range strata {
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })

	rng := rand.New(rand.NewSource(opts.Seed))
	var train, val []pipeline.Record
	for _, status := range statuses {
		group := strata[status]
		rng.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})
		cut := int(float64(len(group)) * opts.ValFraction)
		// Every non-empty stratum contributes at least one
		// validation example once it has two or more members.
		if cut == 0 && len(group) > 1 {
			cut = 1
		}
		val = append(val, group[:cut]...)
		train = append(train, group[cut:]...)
	}

	renderOpts := format.Options{AddBOS: opts.AddBOS}
	if err := writeRendered(trainPath, train, renderOpts); err != nil {
		return SplitResult{}, err
	}
	if err := writeRendered(valPath, val, renderOpts); err != nil {
		return SplitResult{}, err
	}
	return SplitResult{Train: len(train), Val: len(val)}, nil
}

func writeRendered(path string, records []pipeline.Record, opts format.Options) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create split file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, rec := range records {
		text, err := format.Render(rec.Example, opts)
		if err != nil {
			return fmt.Errorf("example %s: %w", rec.Fingerprint, err)
		}
		if err := enc.Encode(trainingLine{Text: text}); err != nil {
			return fmt.Errorf("failed to write split file: %w", err)
		}
	}
	return nil
}
