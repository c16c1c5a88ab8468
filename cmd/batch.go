package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/refine/formatter"
	"github.com/gnolang/refine/internal/config"
	"github.com/gnolang/refine/optimizer"
)

var (
	batchOut     string
	batchWorkers int
	batchNoCache bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Optimize every Python and C file under a directory",
	Long: `Runs one session per source file, concurrently, sharing the learned policy.
Results are written under --out with the same relative layout.
Example) refine batch ./src --out ./optimized`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cfg, err := loadConfig(cfgFile, dbPath)
		if err != nil {
			return err
		}
		if batchWorkers > 0 {
			cfg.Batch.Workers = batchWorkers
		}
		return runBatch(ctx, logger, cfg, args[0], batchOut, batchNoCache, cmd.OutOrStdout())
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchOut, "out", "", "Output directory (required)")
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "Concurrent sessions (default: batch.workers, else one per CPU)")
	batchCmd.Flags().BoolVar(&batchNoCache, "no-cache", false, "Discard cached results and optimize every file again")
	_ = batchCmd.MarkFlagRequired("out")
}

func runBatch(
	ctx context.Context,
	logger *zap.Logger,
	cfg config.Config,
	root, outDir string,
	refresh bool,
	stdout io.Writer,
) error {
	mode := cacheOn
	if refresh {
		mode = cacheRefresh
	}
	engine, cleanup, err := newEngine(cfg, logger, mode)
	if err != nil {
		return err
	}
	defer cleanup()

	outcomes, failures, err := optimizer.ProcessPath(ctx, logger, root, cfg.Batch.Workers, optimizer.ProcessFile(engine), outDir)
	if err != nil {
		return err
	}

	for _, out := range outcomes {
		dst, err := optimizer.OutputPath(root, outDir, out.Path)
		if err != nil {
			return err
		}
		if err := optimizer.WriteFileAtomic(dst, []byte(out.FinalCode)); err != nil {
			return fmt.Errorf("write %s: %w", dst, err)
		}
	}

	fmt.Fprint(stdout, formatter.GenerateSummary(outcomes, failures))
	if len(failures) > 0 {
		return fmt.Errorf("%d files failed", len(failures))
	}
	return nil
}
