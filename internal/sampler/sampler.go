// Package sampler supplies row-ordering decisions to leaf operators.
//
// The engine treats a Sampler as an opaque capability: a leaf asks it for
// the index order of one epoch and resets it between repeats. Samplers are
// shared references; their lifetime is independent of the nodes using them.
package sampler

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/vk/dataflow/internal/errs"
)

// Sampler decides which rows a leaf emits, and in which order, per epoch.
type Sampler interface {
	// Init binds the sampler to a source of numRows rows.
	Init(numRows int) error
	// Epoch returns the row indices for the next pass over the data.
	Epoch() ([]int, error)
	// Reset rewinds the sampler to its initial state.
	Reset()
	// Describe returns a stable, configuration-only description.
	Describe() string
}

// Sequential yields rows [Start, Start+Count) in order. A zero Count means
// every row from Start onwards.
type Sequential struct {
	Start int
	Count int

	numRows int
}

var _ Sampler = (*Sequential)(nil)

func (s *Sequential) Init(numRows int) error {
	if numRows < 0 {
		return errs.New(errs.InvalidArgument, "Sequential.Init", "negative row count %d", numRows)
	}
	if s.Start < 0 || s.Count < 0 {
		return errs.New(errs.InvalidArgument, "Sequential.Init", "start %d and count %d must not be negative", s.Start, s.Count)
	}
	s.numRows = numRows
	return nil
}

func (s *Sequential) Epoch() ([]int, error) {
	end := s.numRows
	if s.Count > 0 && s.Start+s.Count < end {
		end = s.Start + s.Count
	}
	if s.Start >= end {
		return []int{}, nil
	}
	ids := make([]int, 0, end-s.Start)
	for i := s.Start; i < end; i++ {
		ids = append(ids, i)
	}
	return ids, nil
}

func (s *Sequential) Reset() {}

func (s *Sequential) Describe() string {
	return fmt.Sprintf("SequentialSampler(start=%d, count=%d)", s.Start, s.Count)
}

// Random yields a seeded permutation of the rows each epoch, or, with
// Replacement, NumSamples draws with replacement. Every Reset moves to the
// next seed, so repeats reshuffle while runs stay reproducible.
type Random struct {
	Seed        uint64
	Replacement bool
	NumSamples  int

	mu      sync.Mutex
	numRows int
	resets  uint64
	rng     *rand.Rand
}

var _ Sampler = (*Random)(nil)

func (r *Random) Init(numRows int) error {
	if numRows < 0 {
		return errs.New(errs.InvalidArgument, "Random.Init", "negative row count %d", numRows)
	}
	if r.NumSamples < 0 {
		return errs.New(errs.InvalidArgument, "Random.Init", "negative sample count %d", r.NumSamples)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.numRows = numRows
	r.resets = 0
	r.rng = r.newRand()
	return nil
}

func (r *Random) Epoch() ([]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng == nil {
		return nil, errs.New(errs.InvalidState, "Random.Epoch", "sampler used before Init")
	}

	n := r.NumSamples
	if n == 0 || r.numRows == 0 || (!r.Replacement && n > r.numRows) {
		n = r.numRows
	}
	if r.Replacement {
		ids := make([]int, n)
		for i := range ids {
			ids[i] = r.rng.IntN(r.numRows)
		}
		return ids, nil
	}
	return r.rng.Perm(r.numRows)[:n], nil
}

func (r *Random) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.rng = r.newRand()
}

func (r *Random) newRand() *rand.Rand {
	seed := r.Seed + r.resets
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (r *Random) Describe() string {
	return fmt.Sprintf("RandomSampler(seed=%d, replacement=%t, num_samples=%d)", r.Seed, r.Replacement, r.NumSamples)
}
