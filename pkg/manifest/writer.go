package manifest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Writer emits records as line-delimited JSON
type Writer struct {
	w   *bufio.Writer
	enc *json.Encoder
	n   int
}

// NewWriter creates a Writer on top of w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &Writer{w: bw, enc: enc}
}

// Write appends a single record line
func (w *Writer) Write(record Record) error {
	if err := w.enc.Encode(record); err != nil {
		return fmt.Errorf("encode record %s: %w", record.Path, err)
	}
	w.n++
	return nil
}

// Count returns the number of records written so far
func (w *Writer) Count() int {
	return w.n
}

// Flush writes buffered lines to the underlying writer
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// WriteAll writes records sorted by path and flushes
func WriteAll(w io.Writer, records []Record) error {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	mw := NewWriter(w)
	for _, r := range sorted {
		if err := mw.Write(r); err != nil {
			return err
		}
	}
	return mw.Flush()
}
