package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"forgeclient/pkg/client"
	"forgeclient/pkg/output"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Run a one-shot generation and print the preview rows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.GetFormatFromCmd(cmd)
		if err != nil {
			return err
		}
		formatter := output.New(format)
		formatter.SetWriter(cmd.OutOrStdout())

		requestFile, _ := cmd.Flags().GetString("file")
		req, err := client.LoadGenerationConfig(requestFile)
		if err != nil {
			return err
		}

		resp, err := newClient().Generate(cmd.Context(), req)
		if err != nil {
			return err
		}

		return formatter.Output(resp, func(w io.Writer) error {
			fmt.Fprintln(w, resp.Message)
			for _, e := range resp.Errors {
				fmt.Fprintf(w, "error: %s\n", e)
			}
			if len(resp.PreviewData) == 0 {
				return nil
			}
			rows, err := output.NewRecordWriter(w, output.RecordCSV)
			if err != nil {
				return err
			}
			if err := rows.WriteRecords(resp.PreviewData); err != nil {
				return err
			}
			return rows.Flush()
		})
	},
}

func init() {
	previewCmd.Flags().StringP("file", "f", "", "generation request file (YAML or JSON)")
	previewCmd.MarkFlagRequired("file")
	output.AddFormatFlag(previewCmd)

	rootCmd.AddCommand(previewCmd)
}
