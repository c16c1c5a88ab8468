package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/refine/internal/cache"
	"github.com/gnolang/refine/internal/config"
	"github.com/gnolang/refine/internal/store"
	"github.com/gnolang/refine/optimizer"
)

const defaultTimeout = 5 * time.Minute

// languageUsage documents the tags tt.ParseLanguage accepts.
const languageUsage = "Python or C (case-insensitive; py is an alias of Python)"

var (
	cfgFile string
	dbPath  string
	timeout time.Duration
	verbose bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "refine",
	Short:         "refine - learned source-level rewrites for Python and C programs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger, err = zap.NewProduction()
		}
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Path to the learning database (overrides store.path; \"off\" disables it)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "Timeout for a command run")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(normalizeCmd)
	rootCmd.AddCommand(benchCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(rulesCmd)
	rootCmd.AddCommand(historyCmd)
}

// loadConfig reads the configuration file and applies the --db override.
func loadConfig(path, db string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	switch db {
	case "":
	case "off":
		cfg.Store.Path = ""
	default:
		cfg.Store.Path = db
	}
	return cfg, nil
}

type cacheMode int

const (
	cacheOff cacheMode = iota
	cacheOn
	// cacheRefresh drops every cached result before the run.
	cacheRefresh
)

// newEngine builds an optimizer from cfg. The returned func releases the
// store.
func newEngine(cfg config.Config, logger *zap.Logger, mode cacheMode) (*optimizer.Engine, func(), error) {
	var (
		opts    []optimizer.Option
		cleanup = func() {}
	)
	if cfg.Store.Path != "" {
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store: %w", err)
		}
		opts = append(opts, optimizer.WithStore(s))
		cleanup = func() {
			if err := s.Close(); err != nil {
				logger.Warn("closing store", zap.Error(err))
			}
		}
	}
	if mode != cacheOff && cfg.Batch.CacheDir != "" {
		c, err := cache.New(cfg.Batch.CacheDir, cfgFile)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		c.SetMaxAge(cfg.Batch.CacheMaxAge)
		if mode == cacheRefresh {
			if err := c.InvalidateAll(); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("reset cache: %w", err)
			}
		}
		opts = append(opts, optimizer.WithCache(c))
	}

	engine, err := optimizer.New(cfg, logger, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return engine, cleanup, nil
}
