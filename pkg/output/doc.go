// Package output formats command results and streamed records.
//
// Informational commands print either human-readable text or indented JSON
// through a Formatter. Generated records are written incrementally as NDJSON
// or CSV through a RecordWriter, one batch at a time.
package output
