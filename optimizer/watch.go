package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	tt "github.com/gnolang/refine/internal/types"
	"github.com/gnolang/refine/scanner"
)

const defaultDebounce = 100 * time.Millisecond

// Watcher re-optimizes source files under a directory when they change.
type Watcher struct {
	root      string
	processor Processor
	handle    func(*Outcome, error)
	logger    *zap.Logger
	filter    *scanner.Scanner
	excluded  []string
	debounce  time.Duration

	watcher *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// NewWatcher builds a watcher over root. handle receives every outcome or
// error; it may be called from several goroutines. Paths in exclude are not
// watched.
func NewWatcher(
	root string,
	processor Processor,
	handle func(*Outcome, error),
	logger *zap.Logger,
	exclude ...string,
) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var excluded []string
	for _, p := range exclude {
		if abs, err := filepath.Abs(p); err == nil && p != "" {
			excluded = append(excluded, abs)
		}
	}

	return &Watcher{
		root:      root,
		processor: processor,
		handle:    handle,
		logger:    logger,
		filter:    scanner.New(root, SourceExtensions()...),
		excluded:  excluded,
		debounce:  defaultDebounce,
		watcher:   fw,
		pending:   make(map[string]*time.Timer),
	}, nil
}

// Run watches until ctx is done, then releases the watcher and waits for
// in-flight optimizations.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.wg.Wait()
	defer w.watcher.Close()

	if err := w.addTree(w.root); err != nil {
		return err
	}
	w.logger.Info("watching", zap.String("dir", w.root))

	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFileEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) addTree(dir string) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.isExcluded(path) || (path != dir && strings.HasPrefix(d.Name(), ".")) {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
	if err != nil {
		return fmt.Errorf("error adding directory to watcher: %w", err)
	}
	return nil
}

func (w *Watcher) handleFileEvent(ctx context.Context, event fsnotify.Event) {
	if w.isExcluded(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("watch new directory", zap.String("dir", event.Name), zap.Error(err))
			}
			return
		}
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if !w.filter.IsTarget(event.Name) {
		return
	}
	w.schedule(ctx, event.Name)
}

// schedule coalesces bursts of events on one file into a single run.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)

	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == t {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		lang, _ := tt.LanguageFromExt(filepath.Ext(path))
		out, err := w.processor(ctx, path, lang)
		if errors.Is(err, tt.ErrInputNotFound) {
			// removed again before the debounce fired
			return
		}
		w.handle(out, err)
	})
	w.pending[path] = t
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

func (w *Watcher) isExcluded(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, ex := range w.excluded {
		if abs == ex || strings.HasPrefix(abs, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}
