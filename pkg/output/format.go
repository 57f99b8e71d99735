package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Format is the output format of informational commands
type Format string

const (
	// FormatText is the default human-readable format
	FormatText Format = "text"
	// FormatJSON prints the backend response as indented JSON
	FormatJSON Format = "json"
)

// Formatter writes command results in the selected format
type Formatter struct {
	format Format
	writer io.Writer
}

// New creates a Formatter writing to stdout
func New(format Format) *Formatter {
	return &Formatter{
		format: format,
		writer: os.Stdout,
	}
}

// SetWriter redirects output
func (f *Formatter) SetWriter(w io.Writer) {
	f.writer = w
}

// Writer returns the destination writer
func (f *Formatter) Writer() io.Writer {
	return f.writer
}

// Output writes data as JSON, or calls text to render it for humans.
// A nil text falls back to fmt's default rendering.
func (f *Formatter) Output(data any, text func(w io.Writer) error) error {
	switch f.format {
	case FormatJSON:
		encoder := json.NewEncoder(f.writer)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case FormatText:
		if text == nil {
			_, err := fmt.Fprintf(f.writer, "%v\n", data)
			return err
		}
		return text(f.writer)
	default:
		return fmt.Errorf("unsupported output format: %s", f.format)
	}
}

// IsJSON returns true if the format is JSON
func (f *Formatter) IsJSON() bool {
	return f.format == FormatJSON
}

// AddFormatFlag adds the --output flag to cmd
func AddFormatFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "text", "Output format (text|json)")
}

// GetFormatFromCmd reads and validates the --output flag
func GetFormatFromCmd(cmd *cobra.Command) (Format, error) {
	formatStr, err := cmd.Flags().GetString("output")
	if err != nil {
		return FormatText, err
	}

	format := Format(formatStr)
	switch format {
	case FormatText, FormatJSON:
		return format, nil
	default:
		return FormatText, fmt.Errorf("invalid output format: %s (must be 'text' or 'json')", formatStr)
	}
}
