package optimizer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	tt "github.com/gnolang/refine/internal/types"
	"github.com/gnolang/refine/scanner"
)

// FileError is a failure to optimize one file of a directory run.
type FileError struct {
	Path string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }
func (e FileError) Unwrap() error { return e.Err }

// Processor optimizes the file at path.
type Processor func(ctx context.Context, path string, lang tt.Language) (*Outcome, error)

// ProcessFile is the default processor.
func ProcessFile(opt Optimizer) Processor {
	return opt.OptimizeFile
}

// ProcessPath optimizes path, a single file or a directory tree. Directory
// files run concurrently on at most workers goroutines (one per CPU when
// workers <= 0) behind a progress bar. A failing file is logged and reported
// in the returned errors; the other files still run. Outcomes are sorted by
// path. Paths in exclude, such as an output directory inside the tree, are
// skipped.
func ProcessPath(
	ctx context.Context,
	logger *zap.Logger,
	path string,
	workers int,
	processor Processor,
	exclude ...string,
) ([]*Outcome, []FileError, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", tt.ErrInputNotFound, path)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("error accessing %s: %w", path, err)
	}

	if !info.IsDir() {
		lang, ok := tt.LanguageFromExt(filepath.Ext(path))
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", tt.ErrUnsupportedLanguage, path)
		}
		out, err := processor(ctx, path, lang)
		if err != nil {
			return nil, nil, err
		}
		return []*Outcome{out}, nil, nil
	}

	files, err := scanner.New(path, SourceExtensions()...).Exclude(exclude...).Scan()
	if err != nil {
		return nil, nil, err
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription(path),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
	defer bar.Finish()

	var (
		mu       sync.Mutex
		outcomes []*Outcome
		failures []FileError
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		fp := f.Path
		lang, _ := tt.LanguageFromExt(filepath.Ext(fp))
		g.Go(func() error {
			// cancellation stops the run; per-file failures do not
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := processor(gctx, fp, lang)
			bar.Add(1)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				logger.Error("Error processing file", zap.String("file", fp), zap.Error(err))
				failures = append(failures, FileError{Path: fp, Err: err})
				return nil
			}
			outcomes = append(outcomes, out)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Path < outcomes[j].Path })
	sort.Slice(failures, func(i, j int) bool { return failures[i].Path < failures[j].Path })
	return outcomes, failures, nil
}

// SourceExtensions lists the file extensions directory runs pick up.
func SourceExtensions() []string {
	return []string{tt.LanguagePython.Ext(), tt.LanguageC.Ext()}
}

// OutputPath maps src under root to the same relative location under outDir.
func OutputPath(root, outDir, src string) (string, error) {
	rel, err := filepath.Rel(root, src)
	if err != nil {
		return "", err
	}
	return filepath.Join(outDir, rel), nil
}

// WriteFileAtomic writes data to a temporary file next to path and renames
// it into place, so path is either untouched or complete.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
