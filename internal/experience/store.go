// Package experience implements the replay log used to train the policy.
package experience

import (
	"errors"
	"math/rand"

	tt "github.com/gnolang/refine/internal/types"
)

// DefaultCapacity bounds the log when no capacity is configured.
const DefaultCapacity = 10000

// ErrInsufficientData is returned by Sample when the store holds fewer
// transitions than requested.
var ErrInsufficientData = errors.New("insufficient data")

// Store is an append-only log of transitions kept in a fixed-size ring.
// When full, the oldest transition is overwritten. Store is not safe for
// concurrent use.
type Store struct {
	buf  []tt.Transition
	next int // slot the next Record writes to
	size int
	rnd  *rand.Rand
}

// New creates a store holding at most capacity transitions.
// A non-positive capacity selects DefaultCapacity. rnd drives sampling; nil
// seeds a private source.
func New(capacity int, rnd *rand.Rand) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Store{
		buf: make([]tt.Transition, capacity),
		rnd: rnd,
	}
}

// Record appends a copy of t.
func (s *Store) Record(t tt.Transition) {
	s.buf[s.next] = t.Clone()
	s.next = (s.next + 1) % len(s.buf)
	if s.size < len(s.buf) {
		s.size++
	}
}

// Len returns the number of stored transitions.
func (s *Store) Len() int { return s.size }

// Capacity returns the maximum number of stored transitions.
func (s *Store) Capacity() int { return len(s.buf) }

// Sample draws n distinct transitions uniformly at random without
// replacement. It never pads or repeats: if fewer than n transitions are
// stored it returns ErrInsufficientData.
func (s *Store) Sample(n int) ([]tt.Transition, error) {
	if n <= 0 {
		return nil, nil
	}
	if s.size < n {
		return nil, ErrInsufficientData
	}

	// partial Fisher-Yates over logical indices
	idx := make([]int, s.size)
	for i := range idx {
		idx[i] = i
	}
	out := make([]tt.Transition, n)
	for i := 0; i < n; i++ {
		j := i + s.rnd.Intn(s.size-i)
		idx[i], idx[j] = idx[j], idx[i]
		out[i] = s.at(idx[i]).Clone()
	}
	return out, nil
}

// All returns every stored transition, oldest first.
func (s *Store) All() []tt.Transition {
	out := make([]tt.Transition, s.size)
	for i := range out {
		out[i] = s.at(i).Clone()
	}
	return out
}

// at returns the i-th oldest transition.
func (s *Store) at(i int) tt.Transition {
	start := s.next - s.size
	if start < 0 {
		start += len(s.buf)
	}
	return s.buf[(start+i)%len(s.buf)]
}
