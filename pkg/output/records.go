package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"forgeclient/pkg/decoder"
)

// RecordFormat is the encoding of generated records
type RecordFormat string

const (
	RecordNDJSON RecordFormat = "ndjson"
	RecordCSV    RecordFormat = "csv"
)

// RecordWriter writes decoded records incrementally
type RecordWriter interface {
	WriteRecords(records []decoder.Record) error
	// Flush pushes buffered output to the underlying writer
	Flush() error
}

// NewRecordWriter returns a RecordWriter for format
func NewRecordWriter(w io.Writer, format RecordFormat) (RecordWriter, error) {
	switch format {
	case RecordNDJSON, "":
		bw := bufio.NewWriter(w)
		return &ndjsonWriter{w: bw, enc: json.NewEncoder(bw)}, nil
	case RecordCSV:
		return &csvWriter{w: csv.NewWriter(w)}, nil
	default:
		return nil, fmt.Errorf("invalid record format: %s (must be 'ndjson' or 'csv')", format)
	}
}

type ndjsonWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

func (n *ndjsonWriter) WriteRecords(records []decoder.Record) error {
	for _, r := range records {
		if err := n.enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

func (n *ndjsonWriter) Flush() error {
	return n.w.Flush()
}

// csvWriter fixes its columns from the first record: keys in sorted order.
// Later keys outside that set are dropped and missing ones are left empty.
type csvWriter struct {
	w       *csv.Writer
	columns []string
}

func (c *csvWriter) WriteRecords(records []decoder.Record) error {
	for _, r := range records {
		if c.columns == nil {
			c.columns = make([]string, 0, len(r))
			for k := range r {
				c.columns = append(c.columns, k)
			}
			sort.Strings(c.columns)
			if err := c.w.Write(c.columns); err != nil {
				return err
			}
		}

		row := make([]string, len(c.columns))
		for i, col := range c.columns {
			cell, err := formatCell(r[col])
			if err != nil {
				return fmt.Errorf("column %s: %w", col, err)
			}
			row[i] = cell
		}
		if err := c.w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func (c *csvWriter) Flush() error {
	c.w.Flush()
	return c.w.Error()
}

func formatCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
