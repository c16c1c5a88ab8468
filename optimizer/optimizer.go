// Package optimizer wires the decision engine to files: it builds the
// per-language catalog and policy from configuration, restores learned state
// from the store and runs optimization sessions.
package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gnolang/refine/internal/bench"
	"github.com/gnolang/refine/internal/cache"
	"github.com/gnolang/refine/internal/catalog"
	"github.com/gnolang/refine/internal/config"
	"github.com/gnolang/refine/internal/experience"
	"github.com/gnolang/refine/internal/features"
	"github.com/gnolang/refine/internal/normalize"
	"github.com/gnolang/refine/internal/policy"
	"github.com/gnolang/refine/internal/session"
	"github.com/gnolang/refine/internal/store"
	tt "github.com/gnolang/refine/internal/types"
)

// Optimizer is the interface the CLI drives.
type Optimizer interface {
	Optimize(ctx context.Context, code string, lang tt.Language) (*Outcome, error)
	OptimizeFile(ctx context.Context, path string, lang tt.Language) (*Outcome, error)
	Benchmark(ctx context.Context, original, optimized string, lang tt.Language) bench.Report
}

// Outcome is the result of optimizing one program.
type Outcome struct {
	SessionID string
	Path      string
	Language  tt.Language
	Original  string
	session.Result
	// Cached is set when the result came from the result cache and no
	// session ran.
	Cached bool
}

// model is the learned state for one language.
type model struct {
	cat    *catalog.Catalog
	enc    *features.Encoder
	policy *policy.Serialized
}

// Engine runs optimization sessions. It is safe for concurrent use: all
// sessions of a language share one serialized policy.
type Engine struct {
	cfg    config.Config
	store  *store.Store
	cache  *cache.Cache
	runner *bench.Runner
	logger *zap.Logger

	mu     sync.Mutex
	models map[tt.Language]*model
	seed   int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore persists policies, transitions and the session log in s.
func WithStore(s *store.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithCache reuses results of unchanged files in OptimizeFile.
func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

// New builds an engine. Models are created lazily per language.
func New(cfg config.Config, logger *zap.Logger, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Policy.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	e := &Engine{
		cfg:    cfg,
		runner: bench.NewRunner(cfg.Bench, logger),
		logger: logger,
		models: make(map[tt.Language]*model),
		seed:   seed,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Catalog returns the catalog used for lang.
func (e *Engine) Catalog(lang tt.Language) (*catalog.Catalog, error) {
	m, err := e.model(lang)
	if err != nil {
		return nil, err
	}
	return m.cat, nil
}

func (e *Engine) model(lang tt.Language) (*model, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if m, ok := e.models[lang]; ok {
		return m, nil
	}
	if lang != tt.LanguagePython && lang != tt.LanguageC {
		return nil, fmt.Errorf("%w: %s", tt.ErrUnsupportedLanguage, lang)
	}

	var custom []catalog.Rule
	for _, r := range e.cfg.CustomRules() {
		if r.Language() == lang {
			custom = append(custom, r)
		}
	}
	cat, err := catalog.New(lang, custom...)
	if err != nil {
		return nil, err
	}
	enc := features.New(cat)

	p, err := policy.New(enc.Dim(), cat.Len(), e.cfg.Policy)
	if err != nil {
		return nil, err
	}
	if e.store != nil {
		snap, found, err := e.store.LoadSnapshot(lang)
		if err != nil {
			return nil, err
		}
		if found {
			if err := p.Restore(snap); err != nil {
				// the catalog changed shape since the snapshot was taken
				e.logger.Warn("discarding stored policy", zap.Stringer("language", lang), zap.Error(err))
			} else {
				e.logger.Debug("restored policy",
					zap.Stringer("language", lang),
					zap.Int("train_steps", p.TrainSteps()),
					zap.Float64("exploration_rate", p.ExplorationRate()),
				)
			}
		}
	}

	m := &model{cat: cat, enc: enc, policy: policy.NewSerialized(p)}
	e.models[lang] = m
	return m, nil
}

// newExperience builds a session's experience log, preloaded with the
// stored history of lang.
func (e *Engine) newExperience(lang tt.Language, dim int) (*experience.Store, error) {
	e.mu.Lock()
	e.seed++
	rnd := rand.New(rand.NewSource(e.seed))
	e.mu.Unlock()

	exp := experience.New(e.cfg.Experience.Capacity, rnd)
	if e.store == nil {
		return exp, nil
	}
	history, err := e.store.RecentTransitions(lang, exp.Capacity())
	if err != nil {
		return nil, err
	}
	for _, t := range history {
		if len(t.State) == dim && len(t.NextState) == dim {
			exp.Record(t)
		}
	}
	return exp, nil
}

// Optimize runs one session on already normalized code.
func (e *Engine) Optimize(ctx context.Context, code string, lang tt.Language) (*Outcome, error) {
	return e.optimize(ctx, code, lang, "")
}

func (e *Engine) optimize(ctx context.Context, code string, lang tt.Language, path string) (*Outcome, error) {
	m, err := e.model(lang)
	if err != nil {
		return nil, err
	}
	exp, err := e.newExperience(lang, m.enc.Dim())
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		SessionID: uuid.New().String(),
		Path:      path,
		Language:  lang,
		Original:  code,
	}
	s := session.New(m.enc, m.cat, m.policy, exp, e.cfg.Session, e.logger.With(zap.String("session", out.SessionID)))
	out.Result, err = s.Run(ctx, code, e.cfg.Session.MaxSteps)
	if err != nil {
		return nil, err
	}

	if err := e.persist(out, m); err != nil {
		return nil, err
	}
	return out, nil
}

// OptimizeFile normalizes and optimizes the file at path. Unchanged files
// are answered from the result cache when one is configured.
func (e *Engine) OptimizeFile(ctx context.Context, path string, lang tt.Language) (*Outcome, error) {
	if e.cache != nil {
		if entry, ok := e.cache.Get(path); ok {
			return &Outcome{
				Path:     path,
				Language: lang,
				Result:   session.Result{FinalCode: entry.FinalCode, Applied: entry.Applied},
				Cached:   true,
			}, nil
		}
	}

	content, err := normalize.Read(path)
	if err != nil {
		return nil, err
	}
	out, err := e.optimize(ctx, normalize.Code(string(content), lang), lang, path)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		if err := e.cache.Set(path, content, out.FinalCode, out.Applied); err != nil {
			e.logger.Warn("cache update failed", zap.String("file", path), zap.Error(err))
		}
	}
	return out, nil
}

func (e *Engine) persist(out *Outcome, m *model) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.AppendTransitions(out.Language, out.SessionID, out.Transitions); err != nil {
		return err
	}
	capacity := e.cfg.Experience.Capacity
	if capacity <= 0 {
		capacity = experience.DefaultCapacity
	}
	if err := e.store.PruneTransitions(out.Language, capacity); err != nil {
		return err
	}
	if out.Trained {
		if _, err := e.store.SaveSnapshot(out.Language, m.policy.Snapshot()); err != nil {
			return err
		}
	}
	return e.store.LogSession(store.SessionRecord{
		ID:        out.SessionID,
		Language:  out.Language,
		InputPath: out.Path,
		Applied:   out.Applied,
		Steps:     out.Steps,
		CreatedAt: time.Now().UTC(),
	})
}

// Benchmark times original and optimized code.
func (e *Engine) Benchmark(ctx context.Context, original, optimized string, lang tt.Language) bench.Report {
	return e.runner.Compare(ctx, original, optimized, lang)
}

// BenchmarkOutcome times the outcome's original and final code and records
// the timings in the session log.
func (e *Engine) BenchmarkOutcome(ctx context.Context, out *Outcome) bench.Report {
	rep := e.Benchmark(ctx, out.Original, out.FinalCode, out.Language)
	if e.store != nil && out.SessionID != "" && rep.OK() {
		err := e.store.RecordBenchmark(out.SessionID, rep.OriginalTime, rep.OptimizedTime, rep.PercentGain())
		if err != nil {
			e.logger.Warn("recording benchmark failed", zap.String("session", out.SessionID), zap.Error(err))
		}
	}
	return rep
}
