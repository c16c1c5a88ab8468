package optimizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/refine/internal/cache"
	"github.com/gnolang/refine/internal/catalog"
	"github.com/gnolang/refine/internal/config"
	"github.com/gnolang/refine/internal/store"
	tt "github.com/gnolang/refine/internal/types"
)

const nestedLoop = "result = []\nfor i in range(10):\n    for j in range(10):\n        result.append(i * j)"

// testConfig explores uniformly for long enough that every rule is tried.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.Store.Path = ""
	cfg.Session.MaxSteps = 200
	cfg.Policy.Seed = 1
	return cfg
}

func actionsOf(out *Outcome) []tt.TransformationID {
	ids := make([]tt.TransformationID, len(out.Transitions))
	for i, tr := range out.Transitions {
		ids[i] = tr.Action
	}
	return ids
}

func newTestEngine(t *testing.T, cfg config.Config, opts ...Option) *Engine {
	t.Helper()
	e, err := New(cfg, nil, opts...)
	require.NoError(t, err)
	return e
}

func TestOptimizeNestedLoop(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, testConfig())

	out, err := e.Optimize(context.Background(), nestedLoop, tt.LanguagePython)
	require.NoError(t, err)

	assert.Equal(t, "result = [i * j for i in range(10) for j in range(10)]", out.FinalCode)
	assert.Equal(t, []string{"replace_nested_loops"}, out.Applied)
	assert.Equal(t, nestedLoop, out.Original)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, 200, out.Steps)
	assert.True(t, out.Trained)
}

func TestOptimizeUnsupportedLanguage(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, testConfig())

	_, err := e.Optimize(context.Background(), "x", tt.Language(9))
	assert.ErrorIs(t, err, tt.ErrUnsupportedLanguage)
}

func TestOptimizeFileMissing(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, testConfig())

	_, err := e.OptimizeFile(context.Background(), filepath.Join(t.TempDir(), "nope.py"), tt.LanguagePython)
	assert.ErrorIs(t, err, tt.ErrInputNotFound)
}

func TestOptimizeFileNormalizesAndCaches(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "prog.py")
	src := "# build the table\nresult = []\nfor i in range(10):\n\tfor j in range(10):   \n        result.append(i * j)\n\n\n"
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	c, err := cache.New(filepath.Join(dir, "cache"))
	require.NoError(t, err)
	e := newTestEngine(t, testConfig(), WithCache(c))

	out, err := e.OptimizeFile(context.Background(), path, tt.LanguagePython)
	require.NoError(t, err)
	assert.False(t, out.Cached)
	assert.Equal(t, path, out.Path)
	assert.Contains(t, out.FinalCode, "result = [i * j for i in range(10) for j in range(10)]")
	assert.NotContains(t, out.FinalCode, "#")

	again, err := e.OptimizeFile(context.Background(), path, tt.LanguagePython)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, out.FinalCode, again.FinalCode)
	assert.Equal(t, out.Applied, again.Applied)
}

func TestStorePersistsLearningAcrossEngines(t *testing.T) {
	t.Parallel()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cfg := testConfig()
	cfg.Session.MaxSteps = 6
	cfg.Session.BatchSize = 4

	first := newTestEngine(t, cfg, WithStore(s))
	out, err := first.Optimize(context.Background(), nestedLoop, tt.LanguagePython)
	require.NoError(t, err)
	require.True(t, out.Trained)

	n, err := s.CountTransitions(tt.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	snap, found, err := s.LoadSnapshot(tt.LanguagePython)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, snap.TrainSteps)

	// a fresh engine resumes the stored policy and history
	second := newTestEngine(t, cfg, WithStore(s))
	m, err := second.model(tt.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, 1, m.policy.Snapshot().TrainSteps)
	assert.Less(t, m.policy.ExplorationRate(), cfg.Policy.ExplorationRate)

	exp, err := second.newExperience(tt.LanguagePython, m.enc.Dim())
	require.NoError(t, err)
	assert.Equal(t, 6, exp.Len())

	recs, err := s.RecentSessions(10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, out.SessionID, recs[0].ID)
	assert.Equal(t, out.Applied, recs[0].Applied)
}

func TestUnseededEnginesExploreDifferently(t *testing.T) {
	t.Parallel()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cfg := testConfig()
	cfg.Policy.Seed = 0
	cfg.Session.MaxSteps = 20

	first, err := newTestEngine(t, cfg, WithStore(s)).Optimize(context.Background(), "x = 1", tt.LanguagePython)
	require.NoError(t, err)
	second, err := newTestEngine(t, cfg, WithStore(s)).Optimize(context.Background(), "x = 1", tt.LanguagePython)
	require.NoError(t, err)
	assert.NotEqual(t, actionsOf(first), actionsOf(second))

	// an explicit seed replays the same draws
	cfg.Policy.Seed = 42
	a, err := newTestEngine(t, cfg).Optimize(context.Background(), "x = 1", tt.LanguagePython)
	require.NoError(t, err)
	b, err := newTestEngine(t, cfg).Optimize(context.Background(), "x = 1", tt.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, actionsOf(a), actionsOf(b))
}

func TestStoredPolicyOfDifferentShapeIsDiscarded(t *testing.T) {
	t.Parallel()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	cfg := testConfig()
	cfg.Session.MaxSteps = 4
	cfg.Session.BatchSize = 2
	_, err = newTestEngine(t, cfg, WithStore(s)).Optimize(context.Background(), "x = 1", tt.LanguagePython)
	require.NoError(t, err)

	cfg.Policy.HiddenUnits = 8
	e := newTestEngine(t, cfg, WithStore(s))
	m, err := e.model(tt.LanguagePython)
	require.NoError(t, err)
	assert.Zero(t, m.policy.Snapshot().TrainSteps)
}

func TestCustomRulesAreBoundToTheirLanguage(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Rules = []catalog.LiteralRule{
		{RuleName: "py_only", Lang: tt.LanguagePython, Match: "a = a * 1\n", Replace: ""},
		{RuleName: "c_only", Lang: tt.LanguageC, Match: "i = i + 1;", Replace: "i++;", Inline: true},
	}
	e := newTestEngine(t, cfg)

	py, err := e.Catalog(tt.LanguagePython)
	require.NoError(t, err)
	c, err := e.Catalog(tt.LanguageC)
	require.NoError(t, err)

	_, ok := py.Lookup("py_only")
	assert.True(t, ok)
	_, ok = py.Lookup("c_only")
	assert.False(t, ok)
	_, ok = c.Lookup("c_only")
	assert.True(t, ok)
}

func TestProcessPathDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	files := map[string]string{
		"a.py":       nestedLoop,
		"pkg/b.py":   "x = 1\ny = 2\nprint(x + y)",
		"c.c":        "int main(void) { return 0; }",
		"bad.py":     "boom",
		"readme.txt": "skip",
		"out/o.py":   "excluded",
	}
	for p, content := range files {
		full := filepath.Join(root, p)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	e := newTestEngine(t, testConfig())
	failing := errors.New("failed")
	processor := func(ctx context.Context, path string, lang tt.Language) (*Outcome, error) {
		if strings.HasSuffix(path, "bad.py") {
			return nil, failing
		}
		return e.OptimizeFile(ctx, path, lang)
	}

	outs, fails, err := ProcessPath(context.Background(), zapNop(), root, 2, processor, filepath.Join(root, "out"))
	require.NoError(t, err)

	require.Len(t, outs, 3)
	assert.Equal(t, filepath.Join(root, "a.py"), outs[0].Path)
	assert.Equal(t, []string{"replace_nested_loops"}, outs[0].Applied)
	assert.Equal(t, tt.LanguageC, outs[1].Language)
	assert.Empty(t, outs[2].Applied)

	require.Len(t, fails, 1)
	assert.ErrorIs(t, fails[0], failing)
	assert.Equal(t, filepath.Join(root, "bad.py"), fails[0].Path)
}

func TestProcessPathSingleFileAndErrors(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := filepath.Join(root, "one.py")
	require.NoError(t, os.WriteFile(path, []byte("x = 1"), 0o644))

	e := newTestEngine(t, testConfig())
	outs, fails, err := ProcessPath(context.Background(), zapNop(), path, 0, ProcessFile(e))
	require.NoError(t, err)
	assert.Empty(t, fails)
	require.Len(t, outs, 1)
	assert.Equal(t, "x = 1", outs[0].FinalCode)

	_, _, err = ProcessPath(context.Background(), zapNop(), filepath.Join(root, "missing"), 0, ProcessFile(e))
	assert.ErrorIs(t, err, tt.ErrInputNotFound)

	txt := filepath.Join(root, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	_, _, err = ProcessPath(context.Background(), zapNop(), txt, 0, ProcessFile(e))
	assert.ErrorIs(t, err, tt.ErrUnsupportedLanguage)
}

func TestProcessPathCancelled(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.py"), []byte("x = 1"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, testConfig())
	_, _, err := ProcessPath(ctx, zapNop(), root, 1, ProcessFile(e))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConcurrentSessionsShareOnePolicy(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Session.MaxSteps = 5
	cfg.Session.BatchSize = 5
	e := newTestEngine(t, cfg)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Optimize(context.Background(), nestedLoop, tt.LanguagePython)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	m, err := e.model(tt.LanguagePython)
	require.NoError(t, err)
	assert.Equal(t, 8, m.policy.Snapshot().TrainSteps)
}

func TestOutputPathAndAtomicWrite(t *testing.T) {
	t.Parallel()
	root := t.TempDir()

	out, err := OutputPath(filepath.Join(root, "src"), filepath.Join(root, "dst"), filepath.Join(root, "src", "pkg", "a.py"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "dst", "pkg", "a.py"), out)

	require.NoError(t, WriteFileAtomic(out, []byte("first")))
	require.NoError(t, WriteFileAtomic(out, []byte("second")))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	entries, err := os.ReadDir(filepath.Dir(out))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestWatcherReoptimizesChangedFiles(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	outDir := filepath.Join(root, "out")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	e := newTestEngine(t, testConfig())
	results := make(chan *Outcome, 4)
	w, err := NewWatcher(root, ProcessFile(e), func(out *Outcome, err error) {
		if err != nil {
			return
		}
		select {
		case results <- out:
		default:
		}
	}, nil, outDir)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	path := filepath.Join(root, "prog.py")
	// the watch is registered asynchronously; keep touching the file until
	// an outcome arrives
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case out := <-results:
			// an event can fire while the file is still being written
			if len(out.Applied) == 0 {
				continue
			}
			assert.Equal(t, path, out.Path)
			assert.Equal(t, []string{"replace_nested_loops"}, out.Applied)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte(nestedLoop), 0o644))
		case <-deadline:
			t.Fatal("no outcome from watcher")
		}
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
