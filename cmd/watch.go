package cmd

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/refine/formatter"
	"github.com/gnolang/refine/internal/config"
	"github.com/gnolang/refine/optimizer"
)

var watchOut string

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-optimize source files under a directory whenever they change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		// runs until interrupted; --timeout does not apply
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cfg, err := loadConfig(cfgFile, dbPath)
		if err != nil {
			return err
		}
		return runWatch(ctx, logger, cfg, args[0], watchOut, cmd.OutOrStdout())
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchOut, "out", "", "Output directory (required)")
	_ = watchCmd.MarkFlagRequired("out")
}

func runWatch(ctx context.Context, logger *zap.Logger, cfg config.Config, root, outDir string, stdout io.Writer) error {
	engine, cleanup, err := newEngine(cfg, logger, cacheOn)
	if err != nil {
		return err
	}
	defer cleanup()

	var mu sync.Mutex
	handle := func(out *optimizer.Outcome, err error) {
		if err != nil {
			logger.Error("optimization failed", zap.Error(err))
			return
		}
		dst, err := optimizer.OutputPath(root, outDir, out.Path)
		if err == nil {
			err = optimizer.WriteFileAtomic(dst, []byte(out.FinalCode))
		}
		if err != nil {
			logger.Error("writing output", zap.String("file", out.Path), zap.Error(err))
			return
		}

		mu.Lock()
		defer mu.Unlock()
		fmt.Fprint(stdout, formatter.GenerateFormattedOutcome(out))
	}

	w, err := optimizer.NewWatcher(root, optimizer.ProcessFile(engine), handle, logger, outDir, cfg.Batch.CacheDir)
	if err != nil {
		return err
	}
	return w.Run(ctx)
}
