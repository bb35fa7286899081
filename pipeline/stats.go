package pipeline

import (
	"sync"
	"time"

	"github.com/ria-19/routegen/llm"
	"github.com/ria-19/routegen/validate"
)

// RunStats aggregates what happened to every attempt. Discarded
// records keep no payload; only their rejection reason survives here.
type RunStats struct {
	mu sync.Mutex

	RunID     string
	StartedAt time.Time

	attempts      int
	candidates    int
	accepted      int
	duplicates    int
	rejections    map[validate.Reason]int
	backendErrors map[llm.ErrorKind]int
	perIntent     map[string]int
	perBackend    map[string]int
}

// NewRunStats creates empty statistics for one run.
func NewRunStats(runID string) *RunStats {
	return &RunStats{
		RunID:         runID,
		StartedAt:     time.Now(),
		rejections:    make(map[validate.Reason]int),
		backendErrors: make(map[llm.ErrorKind]int),
		perIntent:     make(map[string]int),
		perBackend:    make(map[string]int),
	}
}

func (s *RunStats) recordAttempt() {
	s.mu.Lock()
	s.attempts++
	s.mu.Unlock()
}

func (s *RunStats) recordCandidate() {
	s.mu.Lock()
	s.candidates++
	s.mu.Unlock()
}

func (s *RunStats) recordBackendError(kind llm.ErrorKind) {
	s.mu.Lock()
	s.backendErrors[kind]++
	s.mu.Unlock()
}

func (s *RunStats) recordRejection(reason validate.Reason) {
	s.mu.Lock()
	s.rejections[reason]++
	s.mu.Unlock()
}

func (s *RunStats) recordDuplicate() {
	s.mu.Lock()
	s.duplicates++
	s.mu.Unlock()
}

func (s *RunStats) recordAccepted(intent, backend string) {
	s.mu.Lock()
	s.accepted++
	s.perIntent[intent]++
	s.perBackend[backend]++
	s.mu.Unlock()
}

// Report is an immutable snapshot of a finished (or aborted) run.
type Report struct {
	RunID    string
	Duration time.Duration

	Target     int
	Accepted   int
	Shortfall  int
	Attempts   int
	Candidates int
	Duplicates int

	Rejections    map[validate.Reason]int
	BackendErrors map[llm.ErrorKind]int
	PerIntent     map[string]int
	PerBackend    map[string]int

	// Fatal is set when the run terminated because every backend was
	// permanently unavailable.
	Fatal error
}

// Snapshot freezes the statistics into a report against a target.
func (s *RunStats) Snapshot(target int, fatal error) Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	shortfall := target - s.accepted
	if shortfall < 0 {
		shortfall = 0
	}
	return Report{
		RunID:         s.RunID,
		Duration:      time.Since(s.StartedAt),
		Target:        target,
		Accepted:      s.accepted,
		Shortfall:     shortfall,
		Attempts:      s.attempts,
		Candidates:    s.candidates,
		Duplicates:    s.duplicates,
		Rejections:    copyMap(s.rejections),
		BackendErrors: copyMap(s.backendErrors),
		PerIntent:     copyMap(s.perIntent),
		PerBackend:    copyMap(s.perBackend),
		Fatal:         fatal,
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
