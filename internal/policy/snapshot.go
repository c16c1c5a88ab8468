package policy

import "fmt"

// Snapshot is a serializable copy of a policy's trainable state.
type Snapshot struct {
	InputDim        int
	Actions         int
	HiddenUnits     int
	Params          []float64
	ExplorationRate float64
	TrainSteps      int
}

// Snapshot copies the current parameters and exploration state.
func (p *Policy) Snapshot() Snapshot {
	return Snapshot{
		InputDim:        p.dim,
		Actions:         p.actions,
		HiddenUnits:     p.net.hidden,
		Params:          p.net.params(),
		ExplorationRate: p.epsilon,
		TrainSteps:      p.trainSteps,
	}
}

// Restore loads s into p. The snapshot must have the same shape as p; the
// restored exploration rate is clamped into [floor, configured rate] so a
// resumed policy keeps the decay bounds.
func (p *Policy) Restore(s Snapshot) error {
	if s.InputDim != p.dim || s.Actions != p.actions || s.HiddenUnits != p.net.hidden {
		return fmt.Errorf("snapshot shape %dx%dx%d does not match policy %dx%dx%d",
			s.InputDim, s.HiddenUnits, s.Actions, p.dim, p.net.hidden, p.actions)
	}
	if len(s.Params) != p.net.numParams() {
		return fmt.Errorf("snapshot has %d parameters, want %d", len(s.Params), p.net.numParams())
	}

	p.net.setParams(s.Params)
	eps := s.ExplorationRate
	if eps > p.cfg.ExplorationRate {
		eps = p.cfg.ExplorationRate
	}
	if eps < p.cfg.ExplorationFloor {
		eps = p.cfg.ExplorationFloor
	}
	p.epsilon = eps
	p.trainSteps = s.TrainSteps
	return nil
}
