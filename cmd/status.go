package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"forgeclient/internal/metrics"
	"forgeclient/pkg/output"
	"forgeclient/pkg/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Follow the backend status channel",
	Long: `Connect to the backend status WebSocket and print every status change
until interrupted. The connection is re-established automatically up to the
configured number of attempts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.GetFormatFromCmd(cmd)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		logger := commandLogger(cmd)
		ch := newStatusChannel(logger)
		defer ch.Close()

		printer := statusPrinter(cmd.OutOrStdout(), format == output.FormatJSON, logger)
		unsubscribe := ch.Subscribe(printer)
		defer unsubscribe()

		if GetConfig().Metrics.Addr != "" {
			collector := metrics.NewCollector(ch, 0)
			defer collector.Stop()
			go collector.Start(ctx)
		}

		ch.Open(ctx)
		<-ctx.Done()
		return nil
	},
}

type statusLine struct {
	Time      time.Time `json:"time"`
	Connected bool      `json:"connected"`
	State     string    `json:"state"`
	Text      string    `json:"text"`
	Attempts  int       `json:"attempts"`
}

// statusPrinter prints a line per state change, skipping repeats
func statusPrinter(w io.Writer, asJSON bool, logger zerolog.Logger) func(status.Snapshot) {
	var last status.Snapshot
	first := true
	enc := json.NewEncoder(w)

	return func(s status.Snapshot) {
		if !first && s == last {
			return
		}
		first = false
		last = s

		var err error
		if asJSON {
			err = enc.Encode(statusLine{
				Time:      time.Now(),
				Connected: s.Connected,
				State:     s.State.String(),
				Text:      s.Text,
				Attempts:  s.Attempts,
			})
		} else {
			marker := "disconnected"
			if s.Connected {
				marker = "connected"
			}
			line := fmt.Sprintf("[%s] (%s)", time.Now().Format(time.Kitchen), marker)
			if s.Text != "" {
				line += " " + s.Text
			}
			_, err = fmt.Fprintln(w, line)
		}
		if err != nil {
			logger.Debug().Err(err).Msg("Failed to write status line")
		}
	}
}

func init() {
	output.AddFormatFlag(statusCmd)
	rootCmd.AddCommand(statusCmd)
}
