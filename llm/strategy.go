package llm

import (
	"math/rand"
	"sync"
)

// Candidate describes one eligible backend to a selection strategy.
type Candidate struct {
	Weight      float64
	LogicStrong bool
	Position    int
}

// Strategy chooses which eligible backend serves a task. It is an
// injectable policy so selection stays testable with a fixed seed.
type Strategy interface {
	// Pick returns the index of the chosen candidate. The slice is
	// never empty.
	Pick(eligible []Candidate, profile TaskProfile) int
}

// WeightedRotation is the default policy: weighted random selection
// biased toward logic-strong backends for reasoning-heavy tasks and
// toward the rest for diversity-only tasks. Randomness keeps output
// diversity across models; seeding keeps tests deterministic.
type WeightedRotation struct {
	mu sync.Mutex
	// Boost multiplies the weight of backends matching the task
	// profile. Values <= 1 disable the bias.
	Boost float64
	rng   *rand.Rand
}

// NewWeightedRotation creates the default strategy with the given seed.
func NewWeightedRotation(seed int64) *WeightedRotation {
	return &WeightedRotation{Boost: 2, rng: rand.New(rand.NewSource(seed))}
}

// Pick implements Strategy.
func (s *WeightedRotation) Pick(eligible []Candidate, profile TaskProfile) int {
	weights := make([]float64, len(eligible))
	total := 0.0
	for i, c := range eligible {
		w := c.Weight
		if s.Boost > 1 {
			if profile.NeedsReasoning && c.LogicStrong {
				w *= s.Boost
			} else if !profile.NeedsReasoning && !c.LogicStrong {
				w *= s.Boost
			}
		}
		// Demotion pushes a backend's rotation position behind the
		// others; scale its weight down by rank so demotion still
		// matters under random selection.
		w /= float64(rotationRank(eligible, i))
		weights[i] = w
		total += w
	}

	s.mu.Lock()
	r := s.rng.Float64() * total
	s.mu.Unlock()

	for i, w := range weights {
		r -= w
		if r < 0 {
			return i
		}
	}
	return len(eligible) - 1
}

// rotationRank is 1 for the eligible candidate earliest in rotation
// order, 2 for the next, and so on.
func rotationRank(eligible []Candidate, i int) int {
	rank := 1
	for _, other := range eligible {
		if other.Position < eligible[i].Position {
			rank++
		}
	}
	return rank
}

// Ordered always picks the eligible backend earliest in rotation
// order. Used when a fixed failover order matters more than diversity.
type Ordered struct{}

// Pick implements Strategy.
func (Ordered) Pick(eligible []Candidate, _ TaskProfile) int {
	best := 0
	for i, c := range eligible {
		if c.Position < eligible[best].Position {
			best = i
		}
	}
	return best
}
