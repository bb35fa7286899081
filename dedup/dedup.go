// Package dedup rejects near-duplicate records by content fingerprint.
//
// Information Hiding:
// - Fingerprint normalization rules are internal
// - The seen-set and its synchronization are encapsulated; Admit is
//   an atomic check-and-insert safe for concurrent workers
package dedup

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/ria-19/routegen/schema"
)

// Fingerprint is a stable content hash of a normalized record,
// rendered as 16 hex digits.
type Fingerprint string

// DuplicateError reports that a record's fingerprint was already
// admitted during this run.
type DuplicateError struct {
	Fingerprint Fingerprint
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate record: fingerprint %s already admitted", e.Fingerprint)
}

// SeenSet is an optional persistent backing for fingerprints, letting
// deduplication span runs. Add returns false when the fingerprint was
// already present.
type SeenSet interface {
	Add(fp Fingerprint) (bool, error)
}

// Deduplicator admits each distinct record once. The in-memory set
// is the only mutable state shared across pipeline workers, so Admit
// serializes the check-and-insert.
type Deduplicator struct {
	mu    sync.Mutex
	seen  map[Fingerprint]struct{}
	store SeenSet
}

// New creates a deduplicator scoped to a single run.
func New() *Deduplicator {
	return &Deduplicator{seen: make(map[Fingerprint]struct{})}
}

// NewWithStore creates a deduplicator backed by a persistent seen-set
// in addition to the in-run one.
func NewWithStore(store SeenSet) *Deduplicator {
	return &Deduplicator{seen: make(map[Fingerprint]struct{}), store: store}
}

// Admit strips the record's null-sentinel fields, fingerprints it and
// inserts the fingerprint. Returns a DuplicateError if an equivalent
// record was admitted before.
func (d *Deduplicator) Admit(example *schema.Example) (Fingerprint, error) {
	// Strip before fingerprinting: an un-stripped null field would
	// fake diversity between otherwise identical records.
	example.Strip()
	fp := FingerprintOf(example)

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[fp]; dup {
		return fp, &DuplicateError{Fingerprint: fp}
	}
	if d.store != nil {
		added, err := d.store.Add(fp)
		if err != nil {
			return fp, fmt.Errorf("seen-set store: %w", err)
		}
		if !added {
			d.seen[fp] = struct{}{}
			return fp, &DuplicateError{Fingerprint: fp}
		}
	}
	d.seen[fp] = struct{}{}
	return fp, nil
}

// Forget releases a fingerprint whose record failed to persist, so an
// equivalent record can be admitted again. The persistent seen-set is
// the store's own data, cleaned up by the failed persist's rollback.
func (d *Deduplicator) Forget(fp Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, fp)
}

// Warm preloads fingerprints from previous runs so repeats are caught
// in memory instead of hitting the store.
func (d *Deduplicator) Warm(fps []Fingerprint) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fp := range fps {
		d.seen[fp] = struct{}{}
	}
}

// Len returns how many distinct fingerprints this run has admitted.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// FingerprintOf hashes the normalized (query, tool call) pair. Records
// differing only in casing or whitespace fingerprint identically.
func FingerprintOf(example *schema.Example) Fingerprint {
	digest := xxhash.New()
	digest.WriteString(Normalize(example.UserQuery))
	digest.WriteString("\x00")
	digest.WriteString(string(example.Output.Status))
	digest.WriteString("\x00")
	if example.Output.ToolUse != nil {
		// Struct tags fix the field order, so marshaling is canonical.
		payload, err := json.Marshal(example.Output.ToolUse)
		if err == nil {
			digest.WriteString(Normalize(string(payload)))
		}
	} else {
		digest.WriteString(Normalize(example.Output.FinalAnswer))
	}
	return Fingerprint(fmt.Sprintf("%016x", digest.Sum64()))
}

// Normalize lowercases, NFKC-normalizes and collapses whitespace so
// formatting-only differences cannot defeat deduplication.
func Normalize(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
