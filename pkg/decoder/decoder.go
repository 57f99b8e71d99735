// Package decoder splits the newline-delimited JSON body of a generation
// stream into rows, tolerating arbitrary chunk boundaries.
package decoder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Delimiter separates segments in the generation stream.
const Delimiter = '\n'

// ErrIncompleteTail is returned by Flush when the bytes left over at end of
// stream do not form a valid segment.
var ErrIncompleteTail = errors.New("incomplete trailing segment")

// Record is one generated row: column name to scalar value.
type Record = map[string]any

// Decoder turns newline-delimited JSON segments into records.
//
// Each complete segment is an array of row objects (or a single object).
// The bytes after the last delimiter are held back until more data arrives
// or Flush is called. A Decoder belongs to one stream and is not safe for
// concurrent use.
type Decoder struct {
	buf     []byte
	skipped int
}

// New returns an empty Decoder.
func New() *Decoder {
	return &Decoder{}
}

// Decode is the stateless form of Decoder.Write: it decodes previousTail
// followed by chunk and returns the records found plus the new tail.
func Decode(previousTail, chunk string) ([]Record, string) {
	d := New()
	records := d.Write([]byte(previousTail + chunk))
	return records, string(d.buf)
}

// Write appends chunk to the pending tail and returns every record from the
// segments that are now complete, in stream order. Malformed segments are
// dropped and counted.
func (d *Decoder) Write(chunk []byte) []Record {
	held := len(d.buf)
	d.buf = append(d.buf, chunk...)

	// The held tail has no delimiter, so only the new bytes need a scan.
	last := bytes.LastIndexByte(d.buf[held:], Delimiter)
	if last < 0 {
		return nil
	}
	last += held

	var records []Record
	for _, segment := range bytes.Split(d.buf[:last], []byte{Delimiter}) {
		rows, err := parseSegment(segment)
		if err != nil {
			d.skipped++
			log.Debug().
				Err(err).
				Int("segment_bytes", len(segment)).
				Msg("Dropping malformed stream segment")
			continue
		}
		records = append(records, rows...)
	}

	// Keep only the unterminated remainder, reusing the buffer.
	n := copy(d.buf, d.buf[last+1:])
	d.buf = d.buf[:n]

	return records
}

// Flush parses whatever is left in the tail at end of stream. A blank tail
// yields no records and no error. On failure the error wraps
// ErrIncompleteTail; records returned by earlier Write calls stay valid.
// The tail is discarded in both cases.
func (d *Decoder) Flush() ([]Record, error) {
	tail := d.buf
	d.buf = nil

	if len(bytes.TrimSpace(tail)) == 0 {
		return nil, nil
	}

	rows, err := parseSegment(tail)
	if err != nil {
		return nil, fmt.Errorf("%w (%d bytes): %v", ErrIncompleteTail, len(tail), err)
	}
	return rows, nil
}

// Skipped reports how many malformed segments have been dropped.
func (d *Decoder) Skipped() int {
	return d.skipped
}

// Pending reports how many bytes are waiting for a delimiter.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Reset clears the tail and the skip counter.
func (d *Decoder) Reset() {
	d.buf = nil
	d.skipped = 0
}

func parseSegment(segment []byte) ([]Record, error) {
	segment = bytes.TrimSpace(segment)
	if len(segment) == 0 {
		return nil, nil
	}

	switch segment[0] {
	case '[':
		var rows []Record
		if err := json.Unmarshal(segment, &rows); err != nil {
			return nil, fmt.Errorf("invalid row array: %w", err)
		}
		for i, row := range rows {
			if row == nil {
				return nil, fmt.Errorf("row %d is not an object", i)
			}
		}
		return rows, nil
	case '{':
		var row Record
		if err := json.Unmarshal(segment, &row); err != nil {
			return nil, fmt.Errorf("invalid row object: %w", err)
		}
		return []Record{row}, nil
	default:
		return nil, fmt.Errorf("unexpected segment start %q", segment[0])
	}
}
