package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"forgeclient/pkg/output"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.GetFormatFromCmd(cmd)
		if err != nil {
			return err
		}
		formatter := output.New(format)
		formatter.SetWriter(cmd.OutOrStdout())

		c := newClient()
		health, err := c.Health(cmd.Context())
		if err != nil {
			return err
		}

		return formatter.Output(health, func(w io.Writer) error {
			_, err := fmt.Fprintf(w, "Backend %s: %s\n", c.BaseURL(), health.Message)
			return err
		})
	},
}

func init() {
	output.AddFormatFlag(healthCmd)
	rootCmd.AddCommand(healthCmd)
}
