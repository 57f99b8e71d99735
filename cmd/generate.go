package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"forgeclient/internal/metrics"
	"forgeclient/pkg/client"
	"forgeclient/pkg/ingest"
	"forgeclient/pkg/output"
	"forgeclient/pkg/status"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Stream generated records from the backend",
	Long: `Submit a generation request and write records as they stream in.
The request is read from a YAML or JSON file. Records are written as NDJSON
(default) or CSV to stdout or --out. Ctrl+C cancels the stream; records
already written are kept.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		requestFile, _ := cmd.Flags().GetString("file")
		formatStr, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")
		watchStatus, _ := cmd.Flags().GetBool("watch-status")

		req, err := client.LoadGenerationConfig(requestFile)
		if err != nil {
			return err
		}

		dest := cmd.OutOrStdout()
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return fmt.Errorf("failed to create output file: %w", err)
			}
			defer f.Close()
			dest = f
		}

		records, err := output.NewRecordWriter(dest, output.RecordFormat(formatStr))
		if err != nil {
			return err
		}

		progress := newProgressLine(cmd.ErrOrStderr())
		ctx := cmd.Context()
		logger := commandLogger(cmd)

		if watchStatus {
			ch := newStatusChannel(logger)
			defer ch.Close()
			ch.Subscribe(func(s status.Snapshot) {
				if s.Text != "" {
					progress.note(s.Text)
				}
			})
			if GetConfig().Metrics.Addr != "" {
				collector := metrics.NewCollector(ch, 0)
				defer collector.Stop()
				go collector.Start(ctx)
			}
			ch.Open(ctx)
		}

		c := newClient()
		ing := ingest.NewIngestor(ingest.OpenerFunc(c.OpenStream),
			ingest.WithChunkSize(GetConfig().Ingest.ChunkSize),
			ingest.WithLogger(logger),
		)

		var writeErr error
		handler := ingest.Handler{
			OnBatch: func(b ingest.Batch) {
				if writeErr != nil {
					return
				}
				err := records.WriteRecords(b.Records)
				if err == nil {
					err = records.Flush()
				}
				if err != nil {
					writeErr = fmt.Errorf("failed to write records: %w", err)
					ing.Cancel()
				}
			},
			OnProgress: func(p ingest.Progress) {
				progress.update(p)
			},
		}

		session, err := ing.Start(ctx, req, handler)
		if err != nil {
			return err
		}
		logger.Info().
			Str("session_id", session.ID()).
			Str("model_type", string(req.ModelType)).
			Int("num_records", req.Settings.NumRecords).
			Msg("Started generation stream")

		<-session.Done()
		result, _ := session.Result()
		progress.done()

		if writeErr != nil {
			return writeErr
		}
		if result.Skipped > 0 {
			logger.Warn().Int("skipped", result.Skipped).Msg("Dropped malformed stream segments")
		}
		if result.Warning != nil {
			logger.Warn().Err(result.Warning).Msg("Stream ended with an incomplete record")
		}

		switch result.Outcome {
		case ingest.OutcomeCompleted:
			fmt.Fprintf(cmd.ErrOrStderr(), "Generated %d records in %d batches\n", result.Records, result.Batches)
			return nil
		case ingest.OutcomeCancelled:
			return fmt.Errorf("generation stopped after %d records: %w", result.Records, result.Err)
		default:
			return fmt.Errorf("generation failed after %d records: %w", result.Records, result.Err)
		}
	},
}

// progressLine renders session progress on stderr. On a terminal it
// rewrites a single line; otherwise it prints nothing until done.
type progressLine struct {
	mu      sync.Mutex
	w       io.Writer
	tty     bool
	current ingest.Progress
	drawn   bool
}

func newProgressLine(w io.Writer) *progressLine {
	tty := false
	if f, ok := w.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &progressLine{w: w, tty: tty}
}

func (p *progressLine) update(pr ingest.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = pr
	p.drawLocked()
}

// note prints a status message above the progress line
func (p *progressLine) note(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.drawn {
		fmt.Fprint(p.w, "\r\033[K")
	}
	fmt.Fprintf(p.w, "status: %s\n", text)
	p.drawn = false
	p.drawLocked()
}

func (p *progressLine) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tty && p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func (p *progressLine) drawLocked() {
	if !p.tty || p.current.Batches == 0 {
		return
	}
	fmt.Fprintf(p.w, "\r\033[KReceived %d records in %d batches", p.current.Records, p.current.Batches)
	p.drawn = true
}

func init() {
	generateCmd.Flags().StringP("file", "f", "", "generation request file (YAML or JSON)")
	generateCmd.Flags().String("format", string(output.RecordNDJSON), "record format (ndjson|csv)")
	generateCmd.Flags().String("out", "", "write records to this file instead of stdout")
	generateCmd.Flags().Bool("watch-status", false, "print backend status messages while streaming")
	generateCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(generateCmd)
}
