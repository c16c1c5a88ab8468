package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gnolang/refine/formatter"
	"github.com/gnolang/refine/internal/bench"
	"github.com/gnolang/refine/internal/normalize"
)

var benchLanguage string

var benchCmd = &cobra.Command{
	Use:   "bench <original> <optimized>",
	Short: "Time two versions of a program",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := loadConfig(cfgFile, dbPath)
		if err != nil {
			return err
		}
		runner := bench.NewRunner(cfg.Bench, logger)
		return runBench(ctx, runner, args[0], args[1], benchLanguage, cmd.OutOrStdout())
	},
}

func init() {
	benchCmd.Flags().StringVarP(&benchLanguage, "language", "l", "", languageUsage+"; default: from the file extension, else Python")
}

func runBench(ctx context.Context, runner *bench.Runner, original, optimized, language string, stdout io.Writer) error {
	lang, err := resolveLanguage(language, original)
	if err != nil {
		return err
	}
	orig, err := readSource(original)
	if err != nil {
		return err
	}
	opt, err := readSource(optimized)
	if err != nil {
		return err
	}

	rep := runner.Compare(ctx, orig, opt, lang)
	fmt.Fprint(stdout, formatter.GenerateFormattedBenchmark(rep))
	return nil
}

func readSource(path string) (string, error) {
	data, err := normalize.Read(path)
	return string(data), err
}
