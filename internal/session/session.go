// Package session runs the select/apply/reward loop over one program.
package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/gnolang/refine/internal/catalog"
	"github.com/gnolang/refine/internal/experience"
	"github.com/gnolang/refine/internal/features"
	tt "github.com/gnolang/refine/internal/types"
)

const (
	DefaultMaxSteps      = 5
	DefaultBatchSize     = 32
	DefaultSuccessReward = 10.0
)

// Learner chooses transformations and learns from recorded transitions.
// *policy.Policy and *policy.Serialized both satisfy it.
type Learner interface {
	Select(state []float64) tt.TransformationID
	Train(batch []tt.Transition)
}

// Config holds the loop parameters.
type Config struct {
	MaxSteps      int     `yaml:"max_steps"`
	BatchSize     int     `yaml:"batch_size"`
	SuccessReward float64 `yaml:"success_reward"`
}

func DefaultConfig() Config {
	return Config{
		MaxSteps:      DefaultMaxSteps,
		BatchSize:     DefaultBatchSize,
		SuccessReward: DefaultSuccessReward,
	}
}

// Result is the outcome of one Run.
type Result struct {
	FinalCode string
	// Applied lists the names of the transformations that changed the
	// program, each once, in order of first application.
	Applied []string
	Steps   int
	// Transitions recorded during this run, in step order.
	Transitions []tt.Transition
	// Trained reports whether the post-loop training call happened.
	Trained bool
}

// Session owns the experience log of one policy and drives the decision
// loop. A Session is not safe for concurrent use.
type Session struct {
	enc    *features.Encoder
	cat    *catalog.Catalog
	policy Learner
	exp    *experience.Store
	cfg    Config
	logger *zap.Logger
}

// New builds a session. The encoder must have been built from cat.
// A nil logger discards output.
func New(
	enc *features.Encoder,
	cat *catalog.Catalog,
	policy Learner,
	exp *experience.Store,
	cfg Config,
	logger *zap.Logger,
) *Session {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		enc:    enc,
		cat:    cat,
		policy: policy,
		exp:    exp,
		cfg:    cfg,
		logger: logger,
	}
}

// Experience returns the session's experience log.
func (s *Session) Experience() *experience.Store { return s.exp }

// Run performs maxSteps decision steps on code (the configured MaxSteps
// when maxSteps <= 0) and trains once afterwards.
//
// ctx is only observed between steps. On cancellation Run stops, skips
// training and returns the partial result together with ctx.Err().
func (s *Session) Run(ctx context.Context, code string, maxSteps int) (Result, error) {
	if maxSteps <= 0 {
		maxSteps = s.cfg.MaxSteps
	}

	res := Result{FinalCode: code, Applied: []string{}}
	seen := make(map[tt.TransformationID]bool)

	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		state := s.enc.Encode(res.FinalCode)
		action := s.policy.Select(state)
		candidate, applied := s.cat.Apply(action, res.FinalCode)

		reward := 0.0
		if applied {
			reward = s.cfg.SuccessReward
			res.FinalCode = candidate
			if !seen[action] {
				seen[action] = true
				res.Applied = append(res.Applied, s.cat.Name(action))
			}
		}

		t := tt.Transition{
			State:     state,
			Action:    action,
			Reward:    reward,
			NextState: s.enc.Encode(res.FinalCode),
			Terminal:  reward > 0,
		}
		s.exp.Record(t)
		res.Transitions = append(res.Transitions, t)
		res.Steps = step

		s.logger.Debug("step",
			zap.Int("step", step),
			zap.String("action", s.cat.Name(action)),
			zap.Bool("applied", applied),
			zap.Float64("reward", reward),
		)
	}

	batch, err := s.exp.Sample(s.cfg.BatchSize)
	switch {
	case errors.Is(err, experience.ErrInsufficientData):
		s.logger.Debug("training skipped",
			zap.Int("recorded", s.exp.Len()),
			zap.Int("batch_size", s.cfg.BatchSize),
		)
	case err != nil:
		return res, err
	default:
		s.policy.Train(batch)
		res.Trained = true
	}
	return res, nil
}
