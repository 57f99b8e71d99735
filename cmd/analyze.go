package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"forgeclient/pkg/output"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Upload a CSV or Excel file for structural analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.GetFormatFromCmd(cmd)
		if err != nil {
			return err
		}
		formatter := output.New(format)
		formatter.SetWriter(cmd.OutOrStdout())

		path := args[0]
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()

		result, err := newClient().UploadAnalyze(cmd.Context(), path, f)
		if err != nil {
			return err
		}

		return formatter.Output(result, func(w io.Writer) error {
			fmt.Fprintf(w, "Detected %d dimensions\n", len(result.Dimensions))
			for _, d := range result.Dimensions {
				keys := make([]string, 0, len(d))
				for k := range d {
					if k != "name" {
						keys = append(keys, k)
					}
				}
				sort.Strings(keys)

				fmt.Fprintf(w, "  %v\n", d["name"])
				for _, k := range keys {
					fmt.Fprintf(w, "    %s: %v\n", k, d[k])
				}
			}
			if result.Commentary != "" {
				fmt.Fprintf(w, "\n%s\n", result.Commentary)
			}
			for _, e := range result.Errors {
				fmt.Fprintf(w, "error: %s\n", e)
			}
			return nil
		})
	},
}

func init() {
	output.AddFormatFlag(analyzeCmd)
	rootCmd.AddCommand(analyzeCmd)
}
