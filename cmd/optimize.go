package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/refine/formatter"
	"github.com/gnolang/refine/internal/config"
	tt "github.com/gnolang/refine/internal/types"
	"github.com/gnolang/refine/optimizer"
)

type optimizeOptions struct {
	input    string
	output   string
	language string
	steps    int
	noBench  bool
}

var optimizeOpts optimizeOptions

var optimizeCmd = &cobra.Command{
	Use:   "optimize <input>",
	Short: "Optimize one program and report the applied transformations",
	Long: `Normalizes the input, runs an optimization session and writes the rewritten
program. Without --output the program is printed to stdout.
Example) refine optimize prog.py -o prog_opt.py --language Python`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := loadConfig(cfgFile, dbPath)
		if err != nil {
			return err
		}
		opts := optimizeOpts
		opts.input = args[0]
		return runOptimize(ctx, logger, cfg, opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	optimizeCmd.Flags().StringVarP(&optimizeOpts.output, "output", "o", "", "Output path for the optimized program")
	optimizeCmd.Flags().StringVarP(&optimizeOpts.language, "language", "l", "", languageUsage+"; default: from the file extension, else Python")
	optimizeCmd.Flags().IntVar(&optimizeOpts.steps, "steps", 0, "Decision steps for the session (default: session.max_steps)")
	optimizeCmd.Flags().BoolVar(&optimizeOpts.noBench, "no-bench", false, "Skip benchmarking the original and optimized programs")
}

// resolveLanguage parses an explicit tag, or infers the language from path.
func resolveLanguage(tag, path string) (tt.Language, error) {
	if tag != "" {
		return tt.ParseLanguage(tag)
	}
	if lang, ok := tt.LanguageFromExt(filepath.Ext(path)); ok {
		return lang, nil
	}
	return tt.LanguagePython, nil
}

// runOptimize writes the program to opts.output (or stdout) and the report to
// report. Nothing is written to opts.output unless the session succeeded.
func runOptimize(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Config,
	opts optimizeOptions,
	stdout, report io.Writer,
) error {
	lang, err := resolveLanguage(opts.language, opts.input)
	if err != nil {
		return err
	}
	if opts.steps > 0 {
		cfg.Session.MaxSteps = opts.steps
	}

	engine, cleanup, err := newEngine(cfg, logger, cacheOff)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err := engine.OptimizeFile(ctx, opts.input, lang)
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := optimizer.WriteFileAtomic(opts.output, []byte(out.FinalCode)); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
	} else {
		fmt.Fprintln(stdout, out.FinalCode)
	}

	fmt.Fprint(report, formatter.GenerateFormattedOutcome(out))
	if !opts.noBench {
		rep := engine.BenchmarkOutcome(ctx, out)
		fmt.Fprint(report, formatter.GenerateFormattedBenchmark(rep))
	}
	return nil
}
