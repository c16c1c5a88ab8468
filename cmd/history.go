package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gnolang/refine/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent optimization sessions from the learning database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, dbPath)
		if err != nil {
			return err
		}
		if cfg.Store.Path == "" {
			return errors.New("no learning database configured")
		}
		s, err := store.Open(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer s.Close()
		return runHistory(s, historyLimit, cmd.OutOrStdout())
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of sessions to show")
}

func runHistory(s *store.Store, limit int, stdout io.Writer) error {
	recs, err := s.RecentSessions(limit)
	if err != nil {
		return err
	}
	for _, r := range recs {
		applied := "-"
		if len(r.Applied) > 0 {
			applied = strings.Join(r.Applied, ",")
		}
		input := r.InputPath
		if input == "" {
			input = "<input>"
		}
		line := fmt.Sprintf("%s  %-6s  %s  %s", r.CreatedAt.Format("2006-01-02 15:04:05"), r.Language, input, applied)
		if r.OriginalTime > 0 {
			line += fmt.Sprintf("  %.2f%%", r.PercentGain)
		}
		fmt.Fprintln(stdout, line)
	}
	return nil
}
