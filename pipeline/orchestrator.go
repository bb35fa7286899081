// Pipeline orchestration: drives many generation tasks through the
// generate -> validate -> dedup -> persist sequence.
//
// Concurrency model: a bounded worker pool; each worker runs the full
// per-attempt pipeline independently. The deduplicator owns the only
// shared mutable state, so no lock spans the whole sequence.

package pipeline

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ria-19/routegen/config"
	"github.com/ria-19/routegen/dedup"
	"github.com/ria-19/routegen/llm"
	"github.com/ria-19/routegen/schema"
	"github.com/ria-19/routegen/validate"
)

// ErrAllBackendsUnavailable terminates a run when no backend can
// serve requests at all (for example, every credential is invalid).
var ErrAllBackendsUnavailable = errors.New("all generation backends unavailable")

// Record is one accepted example plus its provenance, ready to persist.
type Record struct {
	Example     *schema.Example
	Fingerprint string
	Intent      string
	Domain      string
	Persona     string
	Backend     string
}

// Sink persists accepted records. Persistence is all-or-nothing per
// record; a sink error discards the record, never half-writes it.
type Sink interface {
	Persist(ctx context.Context, rec Record) error
}

// Orchestrator drives the run: schedules tasks into under-represented
// intent buckets, retries failed attempts across the backend rotation,
// and aggregates failure statistics.
type Orchestrator struct {
	pool      *llm.Pool
	generator *Generator
	validator *validate.Validator
	dedup     *dedup.Deduplicator
	sink      Sink
	plan      *config.Plan
	cfg       config.GenerationConfig
	logger    *log.Logger
	stats     *RunStats

	rngMu sync.Mutex
	rng   *rand.Rand

	mu               sync.Mutex
	targets          map[string]int
	accepted         map[string]int
	attemptsUsed     int
	ceiling          int
	unavailableRun   int
	unavailableLimit int
	fatal            error
	cancel           context.CancelFunc
}

// Option customizes an orchestrator.
type Option func(*Orchestrator)

// WithLogger replaces the default stderr logger.
func WithLogger(logger *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithSeed makes task scheduling deterministic for tests.
func WithSeed(seed int64) Option {
	return func(o *Orchestrator) { o.rng = rand.New(rand.NewSource(seed)) }
}

// New wires an orchestrator over its collaborators.
func New(pool *llm.Pool, generator *Generator, validator *validate.Validator, deduplicator *dedup.Deduplicator, sink Sink, plan *config.Plan, cfg config.GenerationConfig, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		pool:      pool,
		generator: generator,
		validator: validator,
		dedup:     deduplicator,
		sink:      sink,
		plan:      plan,
		cfg:       cfg,
		logger:    log.New(os.Stderr, "routegen: ", log.LstdFlags),
		stats:     NewRunStats(uuid.NewString()),
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.targets = intentTargets(plan.Intents, cfg.TargetTotal)
	o.accepted = make(map[string]int, len(o.targets))
	o.ceiling = cfg.GlobalAttemptCeiling
	if o.ceiling <= 0 {
		o.ceiling = cfg.TargetTotal * 10
	}
	o.unavailableLimit = 3 * len(plan.Backends)
	if o.unavailableLimit < 3 {
		o.unavailableLimit = 3
	}
	return o
}

// Run executes the pipeline until every quota fills, the global
// attempt ceiling exhausts, or the context ends. A shortfall is
// reported, not fatal; the only fatal error is every backend being
// permanently unavailable.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	workers := o.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for ctx.Err() == nil && o.fatalErr() == nil && o.attemptsLeft() {
		task, ok := o.nextTask()
		if !ok {
			// All quotas met: release any worker parked on a backend
			// cooldown so the run ends now, not at cooldown expiry.
			cancel()
			break
		}
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
		}
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(t Task) {
			defer wg.Done()
			defer func() { <-sem }()
			o.runTask(ctx, t)
		}(task)
	}
	wg.Wait()

	fatal := o.fatalErr()
	report := o.stats.Snapshot(o.cfg.TargetTotal, fatal)
	if report.Shortfall > 0 {
		o.logger.Printf("run %s finished with shortfall: %d/%d accepted", report.RunID, report.Accepted, report.Target)
	}
	return report, fatal
}

// runTask drives one task through its attempt budget: acquire a
// backend, generate once, validate, dedup, persist. Backend failures
// and schema/discriminator/domain rejections retry with a fresh
// generation on the next backend in rotation; duplicates do not (the
// scheduler re-queues the quota slot instead).
func (o *Orchestrator) runTask(ctx context.Context, task Task) {
	profile := task.Profile()

	for attempt := 0; attempt < o.cfg.AttemptBudget; attempt++ {
		if ctx.Err() != nil || o.fatalErr() != nil {
			return
		}
		if o.bucketFull(task.Intent.Name) {
			return // quota filled by another worker while we retried
		}
		if !o.reserveAttempt() {
			return
		}

		handle, err := o.pool.Acquire(ctx, profile)
		if err != nil {
			return // context ended while waiting on cooldowns
		}
		o.stats.recordAttempt()

		raw, err := o.generator.Generate(ctx, handle.Provider(), task)
		if err != nil {
			o.pool.ReportError(handle, err)
			if be, ok := llm.AsBackendError(err); ok {
				o.stats.recordBackendError(be.Kind)
				o.noteUnavailable(be.Kind == llm.ErrUnavailable)
				o.logger.Printf("task %s attempt %d: %v", task.ID, attempt+1, be)
			}
			continue
		}
		o.pool.Report(handle, llm.OutcomeOK)
		o.noteUnavailable(false)

		if ctx.Err() != nil {
			return // cancelled mid-flight; discard the result
		}

		if o.processResponse(ctx, task, handle.Name(), raw) {
			return
		}
		// Every candidate was rejected; retry with a fresh generation.
	}
}

// processResponse validates and admits each candidate in a response.
// Returns true once at least one record persisted, ending the task.
func (o *Orchestrator) processResponse(ctx context.Context, task Task, backend, raw string) bool {
	acceptedAny := false
	for _, outcome := range o.validator.ValidateResponse(raw) {
		o.stats.recordCandidate()
		if !outcome.Accepted() {
			o.stats.recordRejection(outcome.Rejection.Reason)
			continue
		}
		// The record must land in the bucket the task was scheduled
		// for, or the quota accounting drifts.
		if string(outcome.Variant) != task.Intent.Tool {
			o.stats.recordRejection(validate.ReasonDomainLogicViolation)
			continue
		}

		// Reserve the quota slot before persisting; concurrent workers
		// on the same bucket must not overshoot the target.
		if !o.tryCredit(task.Intent.Name) {
			break
		}

		fp, err := o.dedup.Admit(outcome.Example)
		var dup *dedup.DuplicateError
		if errors.As(err, &dup) {
			o.uncredit(task.Intent.Name)
			o.stats.recordDuplicate()
			continue
		}
		if err != nil {
			o.uncredit(task.Intent.Name)
			o.logger.Printf("task %s: dedup: %v", task.ID, err)
			continue
		}

		rec := Record{
			Example:     outcome.Example,
			Fingerprint: string(fp),
			Intent:      task.Intent.Name,
			Domain:      task.Domain,
			Persona:     task.Persona,
			Backend:     backend,
		}
		if err := o.sink.Persist(ctx, rec); err != nil {
			o.uncredit(task.Intent.Name)
			// The record never landed anywhere, so its fingerprint
			// must not block a replacement.
			o.dedup.Forget(fp)
			o.logger.Printf("task %s: persist: %v", task.ID, err)
			continue
		}
		o.stats.recordAccepted(task.Intent.Name, backend)
		acceptedAny = true
	}
	return acceptedAny
}

// nextTask picks an under-represented intent weighted by how far it
// is from target, then randomizes domain, persona and style. Returns
// false when every quota is met.
func (o *Orchestrator) nextTask() (Task, bool) {
	o.mu.Lock()
	type bucket struct {
		intent    config.Intent
		remaining int
	}
	var buckets []bucket
	total := 0
	for _, intent := range o.plan.Intents {
		remaining := o.targets[intent.Name] - o.accepted[intent.Name]
		if remaining > 0 {
			buckets = append(buckets, bucket{intent, remaining})
			total += remaining
		}
	}
	o.mu.Unlock()
	if total == 0 {
		return Task{}, false
	}

	o.rngMu.Lock()
	pick := o.rng.Intn(total)
	domain := o.plan.Domains[o.rng.Intn(len(o.plan.Domains))]
	persona := o.plan.Personas[o.rng.Intn(len(o.plan.Personas))]
	var style config.QueryStyle
	if len(o.plan.QueryStyles) > 0 {
		style = o.plan.QueryStyles[o.rng.Intn(len(o.plan.QueryStyles))]
	}
	o.rngMu.Unlock()

	chosen := buckets[len(buckets)-1].intent
	for _, b := range buckets {
		pick -= b.remaining
		if pick < 0 {
			chosen = b.intent
			break
		}
	}
	return NewTask(chosen, domain, persona, style), true
}

// tryCredit reserves one quota slot in the intent's bucket, refusing
// once the bucket is full.
func (o *Orchestrator) tryCredit(intent string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.accepted[intent] >= o.targets[intent] {
		return false
	}
	o.accepted[intent]++
	return true
}

// uncredit returns a reserved slot after a duplicate or persist failure.
func (o *Orchestrator) uncredit(intent string) {
	o.mu.Lock()
	o.accepted[intent]--
	o.mu.Unlock()
}

func (o *Orchestrator) bucketFull(intent string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.accepted[intent] >= o.targets[intent]
}

func (o *Orchestrator) reserveAttempt() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attemptsUsed >= o.ceiling {
		return false
	}
	o.attemptsUsed++
	return true
}

func (o *Orchestrator) attemptsLeft() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attemptsUsed < o.ceiling
}

func (o *Orchestrator) fatalErr() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fatal
}

// noteUnavailable tracks consecutive hard-unavailable failures across
// all workers; a long unbroken run means no backend works at all.
func (o *Orchestrator) noteUnavailable(unavailable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !unavailable {
		o.unavailableRun = 0
		return
	}
	o.unavailableRun++
	if o.unavailableRun >= o.unavailableLimit && o.fatal == nil {
		o.fatal = ErrAllBackendsUnavailable
		if o.cancel != nil {
			o.cancel()
		}
	}
}

// intentTargets converts the weighted distribution into integer
// per-intent quotas summing exactly to total.
func intentTargets(intents []config.Intent, total int) map[string]int {
	weightSum := 0.0
	for _, intent := range intents {
		weightSum += intent.Weight
	}
	targets := make(map[string]int, len(intents))
	assigned := 0
	for _, intent := range intents {
		n := int(float64(total) * intent.Weight / weightSum)
		targets[intent.Name] = n
		assigned += n
	}
	// Hand out rounding remainder in declaration order.
	for i := 0; assigned < total && len(intents) > 0; i++ {
		targets[intents[i%len(intents)].Name]++
		assigned++
	}
	return targets
}
