package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gnolang/refine/formatter"
	"github.com/gnolang/refine/internal/catalog"
	"github.com/gnolang/refine/internal/config"
	tt "github.com/gnolang/refine/internal/types"
)

var rulesLanguage string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the transformation catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgFile, dbPath)
		if err != nil {
			return err
		}
		return runRules(cfg, rulesLanguage, cmd.OutOrStdout())
	},
}

func init() {
	rulesCmd.Flags().StringVarP(&rulesLanguage, "language", "l", "Python", languageUsage)
}

func runRules(cfg config.Config, language string, stdout io.Writer) error {
	lang, err := tt.ParseLanguage(language)
	if err != nil {
		return err
	}
	cat, err := catalog.New(lang, cfg.CustomRules()...)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(stdout, formatter.GenerateRuleList(cat))
	return err
}
