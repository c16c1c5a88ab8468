package session

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/refine/internal/catalog"
	"github.com/gnolang/refine/internal/experience"
	"github.com/gnolang/refine/internal/features"
	"github.com/gnolang/refine/internal/policy"
	tt "github.com/gnolang/refine/internal/types"
)

const nestedLoop = "result = []\nfor i in range(10):\n    for j in range(10):\n        result.append(i * j)"

type mockLearner struct {
	mock.Mock
}

func (m *mockLearner) Select(state []float64) tt.TransformationID {
	args := m.Called(state)
	return args.Get(0).(tt.TransformationID)
}

func (m *mockLearner) Train(batch []tt.Transition) {
	m.Called(batch)
}

// scripted returns a learner that plays the given actions in order.
func scripted(actions ...tt.TransformationID) *mockLearner {
	m := new(mockLearner)
	for _, a := range actions {
		m.On("Select", mock.Anything).Return(a).Once()
	}
	return m
}

func newSession(t *testing.T, l Learner, cfg Config) *Session {
	t.Helper()
	cat, err := catalog.New(tt.LanguagePython)
	require.NoError(t, err)
	exp := experience.New(0, rand.New(rand.NewSource(1)))
	return New(features.New(cat), cat, l, exp, cfg, nil)
}

func TestRunNestedLoopScenario(t *testing.T) {
	t.Parallel()
	l := scripted(
		catalog.ReplaceNestedLoops,
		catalog.ReplaceNestedLoops,
		catalog.ReplaceManualSum,
		catalog.ReplaceNestedLoops,
		catalog.RemoveRedundantCode,
	)
	s := newSession(t, l, DefaultConfig())

	res, err := s.Run(context.Background(), nestedLoop, 5)
	require.NoError(t, err)

	assert.Equal(t, "result = [i * j for i in range(10) for j in range(10)]", res.FinalCode)
	assert.Equal(t, []string{"replace_nested_loops"}, res.Applied)
	assert.Equal(t, 5, res.Steps)
	assert.False(t, res.Trained)
	l.AssertExpectations(t)
	l.AssertNotCalled(t, "Train", mock.Anything)

	require.Len(t, res.Transitions, 5)
	first := res.Transitions[0]
	assert.Equal(t, DefaultSuccessReward, first.Reward)
	assert.True(t, first.Terminal)
	assert.NotEqual(t, first.State, first.NextState)
	for _, tr := range res.Transitions[1:] {
		assert.Zero(t, tr.Reward)
		assert.False(t, tr.Terminal)
		assert.Equal(t, tr.State, tr.NextState)
	}
	assert.Equal(t, 5, s.Experience().Len())
}

func TestRunWithoutPatternsLeavesCodeUnchanged(t *testing.T) {
	t.Parallel()
	const src = "x = 1\ny = 2\nprint(x + y)"

	cat, err := catalog.New(tt.LanguagePython)
	require.NoError(t, err)
	enc := features.New(cat)
	p, err := policy.New(enc.Dim(), cat.Len(), policy.DefaultConfig())
	require.NoError(t, err)

	s := New(enc, cat, p, experience.New(0, nil), DefaultConfig(), nil)
	res, err := s.Run(context.Background(), src, 0)
	require.NoError(t, err)

	assert.Equal(t, src, res.FinalCode)
	assert.Empty(t, res.Applied)
	assert.NotNil(t, res.Applied)
	assert.Equal(t, DefaultMaxSteps, res.Steps)
	for _, tr := range res.Transitions {
		assert.Zero(t, tr.Reward)
		assert.False(t, tr.Terminal)
	}
}

func TestAppliedIsDistinctInFirstApplicationOrder(t *testing.T) {
	t.Parallel()
	src := "numbers = [1, 2, 3]\n" +
		"total = 0\nfor num in numbers:\n    total += num\n" +
		"x = x + 0\n" +
		"x = x + 0\n"

	l := scripted(
		catalog.RemoveRedundantCode,
		catalog.ReplaceManualSum,
		catalog.RemoveRedundantCode,
		catalog.ReplaceManualSum,
	)
	s := newSession(t, l, DefaultConfig())

	res, err := s.Run(context.Background(), src, 4)
	require.NoError(t, err)

	assert.Equal(t, []string{"remove_redundant_code", "replace_manual_sum"}, res.Applied)
	assert.Equal(t, "numbers = [1, 2, 3]\ntotal = sum(numbers)\n", res.FinalCode)
}

func TestRunTrainsOnceWhenEnoughData(t *testing.T) {
	t.Parallel()
	actions := make([]tt.TransformationID, 4)
	l := scripted(actions...)
	l.On("Train", mock.MatchedBy(func(b []tt.Transition) bool { return len(b) == 3 })).Return().Once()

	s := newSession(t, l, Config{MaxSteps: 4, BatchSize: 3, SuccessReward: 1})
	res, err := s.Run(context.Background(), "x = 1", 0)
	require.NoError(t, err)

	assert.True(t, res.Trained)
	assert.Equal(t, 4, res.Steps)
	l.AssertExpectations(t)
	l.AssertNumberOfCalls(t, "Train", 1)
}

func TestRunStopsBetweenStepsOnCancel(t *testing.T) {
	t.Parallel()
	l := new(mockLearner)
	s := newSession(t, l, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Run(ctx, nestedLoop, 5)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, nestedLoop, res.FinalCode)
	assert.Zero(t, res.Steps)
	l.AssertNotCalled(t, "Select", mock.Anything)
	l.AssertNotCalled(t, "Train", mock.Anything)
}

func TestNewAppliesDefaults(t *testing.T) {
	t.Parallel()
	s := newSession(t, new(mockLearner), Config{})
	assert.Equal(t, DefaultMaxSteps, s.cfg.MaxSteps)
	assert.Equal(t, DefaultBatchSize, s.cfg.BatchSize)
}
