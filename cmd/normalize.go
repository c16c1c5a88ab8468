package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/gnolang/refine/internal/normalize"
	"github.com/gnolang/refine/optimizer"
)

var (
	normalizeOutput   string
	normalizeLanguage string
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <input>",
	Short: "Strip comments and normalize whitespace without optimizing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runNormalize(args[0], normalizeOutput, normalizeLanguage, cmd.OutOrStdout())
	},
}

func init() {
	normalizeCmd.Flags().StringVarP(&normalizeOutput, "output", "o", "", "Output path (default: stdout)")
	normalizeCmd.Flags().StringVarP(&normalizeLanguage, "language", "l", "", languageUsage+"; default: from the file extension, else Python")
}

func runNormalize(input, output, language string, stdout io.Writer) error {
	lang, err := resolveLanguage(language, input)
	if err != nil {
		return err
	}
	code, err := normalize.File(input, lang)
	if err != nil {
		return err
	}
	if output == "" {
		_, err = fmt.Fprintln(stdout, code)
		return err
	}
	return optimizer.WriteFileAtomic(output, []byte(code))
}
