// Package bench times programs before and after optimization.
package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	tt "github.com/gnolang/refine/internal/types"
)

const (
	StageCompile = "compile"
	StageRun     = "run"
)

const defaultMaxOutput = 64 * 1024

// ExecutionError reports a program that failed to compile or exited non-zero.
type ExecutionError struct {
	Stage    string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s failed", e.Stage)
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s (exit %d)", msg, e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{tt.ErrExecutionFailure}
	}
	return []error{tt.ErrExecutionFailure, e.Err}
}

// Config selects the toolchain used to run programs.
type Config struct {
	Python  string        `yaml:"python"`
	CC      string        `yaml:"cc"`
	CFlags  []string      `yaml:"cflags,omitempty"`
	Timeout time.Duration `yaml:"timeout"`

	// IncludeCompile adds the C compile step to the measured time.
	IncludeCompile bool `yaml:"include_compile"`
}

func DefaultConfig() Config {
	return Config{
		Python:  "python3",
		CC:      "cc",
		Timeout: time.Minute,
	}
}

// Runner executes programs and measures their wall-clock time.
type Runner struct {
	cfg       Config
	maxOutput int
	logger    *zap.Logger
}

func NewRunner(cfg Config, logger *zap.Logger) *Runner {
	def := DefaultConfig()
	if cfg.Python == "" {
		cfg.Python = def.Python
	}
	if cfg.CC == "" {
		cfg.CC = def.CC
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, maxOutput: defaultMaxOutput, logger: logger}
}

// Measure writes code to a temporary directory, runs it and returns the
// elapsed seconds of the run. C programs are compiled first; compilation is
// part of the measured time only with IncludeCompile.
func (r *Runner) Measure(ctx context.Context, code string, lang tt.Language) (float64, error) {
	dir, err := os.MkdirTemp("", "refine-bench-*")
	if err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "program"+lang.Ext())
	if err := os.WriteFile(src, []byte(code), 0o600); err != nil {
		return 0, fmt.Errorf("write program: %w", err)
	}

	var (
		name    string
		args    []string
		compile time.Duration
	)
	switch lang {
	case tt.LanguagePython:
		name, args = r.cfg.Python, []string{src}
	case tt.LanguageC:
		bin := filepath.Join(dir, "program")
		ccArgs := append(append([]string{}, r.cfg.CFlags...), src, "-o", bin)
		if compile, err = r.execute(ctx, StageCompile, r.cfg.CC, ccArgs, dir); err != nil {
			return 0, err
		}
		if !r.cfg.IncludeCompile {
			compile = 0
		}
		name = bin
	default:
		return 0, fmt.Errorf("%w: %s", tt.ErrUnsupportedLanguage, lang)
	}

	elapsed, err := r.execute(ctx, StageRun, name, args, dir)
	if err != nil {
		return 0, err
	}
	return (compile + elapsed).Seconds(), nil
}

func (r *Runner) execute(ctx context.Context, stage, name string, args []string, dir string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	stderr := &limitedBuffer{limit: r.maxOutput}
	cmd.Stdout = &limitedBuffer{limit: r.maxOutput}
	cmd.Stderr = stderr

	r.logger.Debug("executing",
		zap.String("stage", stage),
		zap.String("command", name),
		zap.Strings("args", args),
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if ctx.Err() != nil {
		return elapsed, &ExecutionError{Stage: stage, ExitCode: -1, Stderr: stderr.String(), Err: ctx.Err()}
	}
	if err != nil {
		execErr := &ExecutionError{Stage: stage, ExitCode: -1, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
			execErr.Err = nil
		}
		return elapsed, execErr
	}
	return elapsed, nil
}

// limitedBuffer keeps the first limit bytes written and drops the rest.
type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return string(bytes.TrimSpace(b.buf.Bytes()))
}
