// Package config provides application settings loaded from environment
// variables and the generation plan loaded from YAML.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
//
// No process-wide mutable state: Settings and Plan are built once and
// passed down explicitly.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Settings holds all scalar application configuration.
type Settings struct {
	Generation GenerationConfig
	Validation ValidationConfig
}

// GenerationConfig controls the pipeline run.
type GenerationConfig struct {
	// TargetTotal is how many accepted examples the run aims for.
	TargetTotal int
	// BatchSize is how many candidate examples one backend request asks for.
	BatchSize int
	// AttemptBudget is the per-task retry/failover budget.
	AttemptBudget int
	// GlobalAttemptCeiling bounds total generation attempts for a run.
	// Zero derives a ceiling from TargetTotal.
	GlobalAttemptCeiling int
	// Workers is the bounded size of the parallel task pool.
	Workers int
	// MaxTokens and Temperature are passed to every backend.
	MaxTokens   uint32
	Temperature float64
}

// ValidationConfig holds the quality thresholds the validator enforces.
type ValidationConfig struct {
	MinQueryLen        int
	MinThoughtWords    int
	MaxThoughtWords    int
	MinAnswerLen       int
	ParrotingThreshold float64
	MinSearchQueryLen  int
}

// New loads settings from environment variables, applying defaults.
// Returns an error if a variable contains an invalid value.
func New() (Settings, error) {
	targetTotal, err := getEnvInt("ROUTEGEN_TARGET_TOTAL", 500)
	if err != nil {
		return Settings{}, err
	}
	batchSize, err := getEnvInt("ROUTEGEN_BATCH_SIZE", 3)
	if err != nil {
		return Settings{}, err
	}
	attemptBudget, err := getEnvInt("ROUTEGEN_MAX_GENERATION_RETRIES", 4)
	if err != nil {
		return Settings{}, err
	}
	ceiling, err := getEnvInt("ROUTEGEN_GLOBAL_ATTEMPT_CEILING", 0)
	if err != nil {
		return Settings{}, err
	}
	workers, err := getEnvInt("ROUTEGEN_WORKERS", 4)
	if err != nil {
		return Settings{}, err
	}
	maxTokens, err := getEnvUint32("ROUTEGEN_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("ROUTEGEN_TEMPERATURE", 0.85)
	if err != nil {
		return Settings{}, err
	}

	minQueryLen, err := getEnvInt("MIN_QUERY_LENGTH", 5)
	if err != nil {
		return Settings{}, err
	}
	minThoughtWords, err := getEnvInt("MIN_THOUGHT_WORDS", 8)
	if err != nil {
		return Settings{}, err
	}
	maxThoughtWords, err := getEnvInt("MAX_THOUGHT_WORDS", 100)
	if err != nil {
		return Settings{}, err
	}
	minAnswerLen, err := getEnvInt("MIN_FINAL_ANSWER_LENGTH", 10)
	if err != nil {
		return Settings{}, err
	}
	parroting, err := getEnvFloat64("PARROTING_THRESHOLD", 0.8)
	if err != nil {
		return Settings{}, err
	}
	minSearchQueryLen, err := getEnvInt("MIN_SEARCH_QUERY_LENGTH", 2)
	if err != nil {
		return Settings{}, err
	}

	return Settings{
		Generation: GenerationConfig{
			TargetTotal:          targetTotal,
			BatchSize:            batchSize,
			AttemptBudget:        attemptBudget,
			GlobalAttemptCeiling: ceiling,
			Workers:              workers,
			MaxTokens:            maxTokens,
			Temperature:          temperature,
		},
		Validation: ValidationConfig{
			MinQueryLen:        minQueryLen,
			MinThoughtWords:    minThoughtWords,
			MaxThoughtWords:    maxThoughtWords,
			MinAnswerLen:       minAnswerLen,
			ParrotingThreshold: parroting,
			MinSearchQueryLen:  minSearchQueryLen,
		},
	}, nil
}

// MustNew loads settings and panics on invalid environment values.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}
