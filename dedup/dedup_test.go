package dedup

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ria-19/routegen/schema"
)

func searchExample(query, thought string) *schema.Example {
	return &schema.Example{
		UserQuery: query,
		Output: schema.Output{
			Status:  schema.StatusRunning,
			Thought: thought,
			ToolUse: &schema.ToolUse{
				Name: schema.ToolCodebaseSearch,
				Args: &schema.CodebaseSearchArgs{Query: "retry backoff"},
			},
		},
	}
}

func TestAdmitRejectsSecondEquivalent(t *testing.T) {
	d := New()

	fp1, err := d.Admit(searchExample("find the retry logic", "Searching is the right move here because the code location is unknown."))
	if err != nil {
		t.Fatalf("first Admit failed: %v", err)
	}

	_, err = d.Admit(searchExample("find the retry logic", "A different thought does not make the record distinct."))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateError, got %v", err)
	}
	if dup.Fingerprint != fp1 {
		t.Errorf("duplicate fingerprint mismatch: %s vs %s", dup.Fingerprint, fp1)
	}
	if d.Len() != 1 {
		t.Errorf("expected 1 admitted record, got %d", d.Len())
	}
}

func TestFingerprintIgnoresCasingAndWhitespace(t *testing.T) {
	a := searchExample("Find   the retry Logic", "x")
	b := searchExample("find the retry logic", "y")
	a.Strip()
	b.Strip()
	if FingerprintOf(a) != FingerprintOf(b) {
		t.Error("casing and whitespace differences must fingerprint identically")
	}
}

func TestFingerprintIgnoresNullSentinels(t *testing.T) {
	withSentinel := searchExample("find the retry logic", "x")
	withSentinel.Output.ToolUse.Args.(*schema.CodebaseSearchArgs).FilePattern = "null"
	plain := searchExample("find the retry logic", "x")

	d := New()
	if _, err := d.Admit(plain); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}
	if _, err := d.Admit(withSentinel); err == nil {
		t.Error("textual null must not fake diversity")
	}
}

func TestFingerprintSeparatesVariants(t *testing.T) {
	search := searchExample("check the settings", "x")
	search.Strip()
	file := &schema.Example{
		UserQuery: "check the settings",
		Output: schema.Output{
			Status: schema.StatusRunning,
			ToolUse: &schema.ToolUse{
				Name: schema.ToolFileManager,
				Args: &schema.FileManagerArgs{Operation: schema.FileOpRead, Path: "settings.py"},
			},
		},
	}
	file.Strip()
	if FingerprintOf(search) == FingerprintOf(file) {
		t.Error("same query with different tool calls must fingerprint differently")
	}
}

func TestFingerprintSeparatesStatuses(t *testing.T) {
	running := searchExample("what is a goroutine", "x")
	running.Strip()
	complete := &schema.Example{
		UserQuery: "what is a goroutine",
		Output:    schema.Output{Status: schema.StatusComplete, FinalAnswer: "A lightweight thread managed by the runtime."},
	}
	complete.Strip()
	if FingerprintOf(running) == FingerprintOf(complete) {
		t.Error("running and complete records must fingerprint differently")
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Find\tThe   RETRY logic \n"); got != "find the retry logic" {
		t.Errorf("Normalize = %q", got)
	}
}

// errorStore fails every Add, proving store errors surface distinctly
// from duplicates.
type errorStore struct{}

func (errorStore) Add(Fingerprint) (bool, error) { return false, fmt.Errorf("disk full") }

func TestAdmitSurfacesStoreErrors(t *testing.T) {
	d := NewWithStore(errorStore{})
	_, err := d.Admit(searchExample("find the retry logic", "x"))
	if err == nil {
		t.Fatal("expected store error")
	}
	var dup *DuplicateError
	if errors.As(err, &dup) {
		t.Error("store failure must not read as a duplicate")
	}
}

// recordingStore remembers fingerprints across deduplicator instances,
// standing in for the SQLite store.
type recordingStore struct {
	mu   sync.Mutex
	seen map[Fingerprint]bool
}

func (s *recordingStore) Add(fp Fingerprint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen == nil {
		s.seen = make(map[Fingerprint]bool)
	}
	if s.seen[fp] {
		return false, nil
	}
	s.seen[fp] = true
	return true, nil
}

func TestDeduplicationSpansRunsViaStore(t *testing.T) {
	store := &recordingStore{}

	first := NewWithStore(store)
	if _, err := first.Admit(searchExample("find the retry logic", "x")); err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// A new run over the same store rejects the repeat.
	second := NewWithStore(store)
	_, err := second.Admit(searchExample("find the retry logic", "x"))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected cross-run duplicate, got %v", err)
	}
}

func TestForgetReleasesFingerprint(t *testing.T) {
	d := New()
	fp, err := d.Admit(searchExample("find the retry logic", "x"))
	if err != nil {
		t.Fatalf("Admit failed: %v", err)
	}

	// A failed persist takes the fingerprint back; an equivalent record
	// must be admissible again.
	d.Forget(fp)
	if _, err := d.Admit(searchExample("find the retry logic", "x")); err != nil {
		t.Fatalf("expected re-admission after Forget, got %v", err)
	}
	if d.Len() != 1 {
		t.Errorf("expected a single live fingerprint, got %d", d.Len())
	}
}

func TestWarmPreloadsFingerprints(t *testing.T) {
	seed := searchExample("find the retry logic", "x")
	seed.Strip()
	fp := FingerprintOf(seed)

	d := New()
	d.Warm([]Fingerprint{fp})
	_, err := d.Admit(searchExample("find the retry logic", "y"))
	var dup *DuplicateError
	if !errors.As(err, &dup) {
		t.Fatalf("expected warmed fingerprint to reject repeat, got %v", err)
	}
}

func TestAdmitConcurrentWorkers(t *testing.T) {
	d := New()
	const workers = 16

	var wg sync.WaitGroup
	admitted := make(chan Fingerprint, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := d.Admit(searchExample("find the retry logic", "x"))
			if err == nil {
				admitted <- ""
			}
		}()
	}
	wg.Wait()
	close(admitted)

	wins := 0
	for range admitted {
		wins++
	}
	if wins != 1 {
		t.Errorf("exactly one worker should admit the record, got %d", wins)
	}
	if d.Len() != 1 {
		t.Errorf("expected 1 distinct fingerprint, got %d", d.Len())
	}
}
