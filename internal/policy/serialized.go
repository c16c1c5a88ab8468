package policy

import (
	"sync"

	tt "github.com/gnolang/refine/internal/types"
)

// Serialized shares one Policy between concurrent sessions. Every call,
// including Select, which consumes the policy's random source, goes through a
// single lock, so training and decay have exactly one writer at a time.
type Serialized struct {
	mu sync.Mutex
	p  *Policy
}

// NewSerialized wraps p. p must not be used directly afterwards.
func NewSerialized(p *Policy) *Serialized {
	return &Serialized{p: p}
}

func (s *Serialized) Select(state []float64) tt.TransformationID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Select(state)
}

func (s *Serialized) Train(batch []tt.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.p.Train(batch)
}

func (s *Serialized) ExplorationRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.ExplorationRate()
}

func (s *Serialized) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.p.Snapshot()
}
