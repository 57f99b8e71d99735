package cmd

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"forgeclient/pkg/output"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <model-type>",
	Short: "Ask the backend for a default model structure",
	Long: `Ask the backend for a suggested set of dimensions and dependencies for a
model type (FinancialPlanning, SalesAnalysis or HR_Headcount). Text output is
YAML that can be edited into a generation request file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.GetFormatFromCmd(cmd)
		if err != nil {
			return err
		}
		formatter := output.New(format)
		formatter.SetWriter(cmd.OutOrStdout())

		suggestion, err := newClient().SuggestStructure(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		return formatter.Output(suggestion, func(w io.Writer) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(suggestion.SuggestedStructure); err != nil {
				return err
			}
			return enc.Close()
		})
	},
}

func init() {
	output.AddFormatFlag(suggestCmd)
	rootCmd.AddCommand(suggestCmd)
}
