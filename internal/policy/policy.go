// Package policy implements the epsilon-greedy action selector and the value
// approximator it is backed by.
//
// Select never fails and always returns an id in [0, actions). Train updates
// the approximator toward one-step bootstrapped targets and then decays the
// exploration rate multiplicatively toward its floor.
//
// A Policy is not safe for concurrent use; wrap it in Serialized when several
// sessions share one model.
package policy

import (
	"errors"
	"fmt"
	"math/rand"

	tt "github.com/gnolang/refine/internal/types"
)

// Config holds the learning and exploration parameters.
type Config struct {
	Discount         float64 `yaml:"discount"`
	ExplorationRate  float64 `yaml:"exploration_rate"`
	ExplorationDecay float64 `yaml:"exploration_decay"`
	ExplorationFloor float64 `yaml:"exploration_floor"`
	LearningRate     float64 `yaml:"learning_rate"`
	HiddenUnits      int     `yaml:"hidden_units"`
	GradientClip     float64 `yaml:"gradient_clip"`

	// Seed fixes the random source for reproducible runs. Zero draws a
	// fresh seed for every policy.
	Seed int64 `yaml:"seed"`
}

// DefaultConfig returns the design defaults.
func DefaultConfig() Config {
	return Config{
		Discount:         0.95,
		ExplorationRate:  1.0,
		ExplorationDecay: 0.995,
		ExplorationFloor: 0.01,
		LearningRate:     0.001,
		HiddenUnits:      64,
		GradientClip:     10,
	}
}

// Validate checks the config for values the policy cannot work with.
func (c Config) Validate() error {
	switch {
	case c.Discount < 0 || c.Discount >= 1:
		return fmt.Errorf("discount %v outside [0, 1)", c.Discount)
	case c.ExplorationFloor < 0 || c.ExplorationFloor > 1:
		return fmt.Errorf("exploration floor %v outside [0, 1]", c.ExplorationFloor)
	case c.ExplorationRate < c.ExplorationFloor || c.ExplorationRate > 1:
		return fmt.Errorf("exploration rate %v outside [floor, 1]", c.ExplorationRate)
	case c.ExplorationDecay <= 0 || c.ExplorationDecay > 1:
		return fmt.Errorf("exploration decay %v outside (0, 1]", c.ExplorationDecay)
	case c.LearningRate <= 0:
		return errors.New("learning rate must be positive")
	case c.HiddenUnits <= 0:
		return errors.New("hidden units must be positive")
	}
	return nil
}

// Policy selects transformations for a state.
type Policy struct {
	cfg     Config
	net     *network
	rnd     *rand.Rand
	dim     int
	actions int

	epsilon    float64
	trainSteps int
}

// New creates a policy for states of length dim and the given number of actions.
func New(dim, actions int, cfg Config) (*Policy, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("state dimension must be positive, got %d", dim)
	}
	if actions <= 0 {
		return nil, fmt.Errorf("action count must be positive, got %d", actions)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy config: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	rnd := rand.New(rand.NewSource(seed))
	return &Policy{
		cfg:     cfg,
		net:     newNetwork(dim, cfg.HiddenUnits, actions, rnd),
		rnd:     rnd,
		dim:     dim,
		actions: actions,
		epsilon: cfg.ExplorationRate,
	}, nil
}

// Dim returns the expected state length.
func (p *Policy) Dim() int { return p.dim }

// Actions returns the size of the action space.
func (p *Policy) Actions() int { return p.actions }

// ExplorationRate returns the current epsilon.
func (p *Policy) ExplorationRate() float64 { return p.epsilon }

// TrainSteps returns how many non-empty training calls the policy has seen.
func (p *Policy) TrainSteps() int { return p.trainSteps }

// Values returns the estimated value of every action in state.
func (p *Policy) Values(state []float64) []float64 {
	_, q := p.net.forward(p.input(state))
	return q
}

// Select picks an action: uniformly at random with probability epsilon,
// otherwise the highest-valued action with ties going to the lowest id.
func (p *Policy) Select(state []float64) tt.TransformationID {
	if p.rnd.Float64() < p.epsilon {
		return tt.TransformationID(p.rnd.Intn(p.actions))
	}
	return argmax(p.Values(state))
}

// Train fits the approximator on batch and decays the exploration rate.
// An empty batch changes nothing.
func (p *Policy) Train(batch []tt.Transition) {
	if len(batch) == 0 {
		return
	}
	for _, t := range batch {
		a := int(t.Action)
		if a < 0 || a >= p.actions {
			continue
		}
		target := t.Reward
		if !t.Terminal {
			next := p.Values(t.NextState)
			target += p.cfg.Discount * next[argmax(next)]
		}
		p.net.fit(p.input(t.State), a, target, p.cfg.LearningRate, p.cfg.GradientClip)
	}
	p.trainSteps++
	p.decay()
}

func (p *Policy) decay() {
	next := p.epsilon * p.cfg.ExplorationDecay
	if next < p.cfg.ExplorationFloor {
		next = p.cfg.ExplorationFloor
	}
	if next < p.epsilon {
		p.epsilon = next
	}
}

// input coerces malformed states to the degenerate zero vector.
func (p *Policy) input(state []float64) []float64 {
	if len(state) != p.dim {
		return make([]float64, p.dim)
	}
	return state
}

func argmax(values []float64) tt.TransformationID {
	best := 0
	for i := 1; i < len(values); i++ {
		if values[i] > values[best] {
			best = i
		}
	}
	return tt.TransformationID(best)
}
