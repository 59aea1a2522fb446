/*
PURPOSE:
  Writes the per-iteration training log as CSV.
  Ensures data integrity by flushing and syncing every row.

REQUIREMENTS:
  User-specified:
  - Header row = session schema, then one row per iteration, 0-based ids.
  - A crash must not lose rows that were already written.

  Implementation-discovered:
  - Historical logs were rewritten in full after every iteration. Appending one
    row produces the same file without the quadratic I/O or the truncation window.
  - Some downstream tools expect the historical (misaligned) row layout,
    so it is still available behind WithLegacyRows.

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer, internal/cli (export)
  - Consumes: internal/model.Record, internal/schema.Schema

ERROR HANDLING:
  - Returns error on file creation, encoding (schema drift) or write failure.

IMPLEMENTATION RULES:
  - Use encoding/csv.
  - Flush() + Sync() after every row.
  - Mutex guards the writer even though the trainer is sequential.

USAGE:
  l, err := output.CreateCSV("out/20240101-120000.csv", s)
  l.Append(rec)
  l.Close()

SELF-HEALING INSTRUCTIONS:
  - If the CSV format changes, update internal/schema, not this file.

RELATED FILES:
  - internal/schema/schema.go

MAINTENANCE:
  - Keep WriteCSV and Append producing byte-identical output.
*/

package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/schema"
)

// CSVOption configures how rows are encoded.
type CSVOption func(*csvOptions)

type csvOptions struct {
	legacy bool
}

// WithLegacyRows writes rows in the historical layout, where an unmeasured
// objective contributes no result cell.
func WithLegacyRows() CSVOption {
	return func(o *csvOptions) { o.legacy = true }
}

func encoder(s schema.Schema, opts []CSVOption) func(int, model.Record) ([]string, error) {
	var o csvOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.legacy {
		return s.LegacyRow
	}
	return s.Row
}

// CSVLog appends training records to a CSV file.
type CSVLog struct {
	path   string
	file   *os.File
	writer *csv.Writer
	encode func(int, model.Record) ([]string, error)
	next   int
	mu     sync.Mutex
}

// CreateCSV creates (or truncates) the file at path and writes the header.
func CreateCSV(path string, s schema.Schema, opts ...CSVOption) (*CSVLog, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	l := &CSVLog{
		path:   path,
		file:   f,
		writer: csv.NewWriter(f),
		encode: encoder(s, opts),
	}
	if err := l.writeRow(s.Columns()); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header to %s: %w", path, err)
	}
	return l, nil
}

// Append writes rec as the next row. A record that fails to encode does not
// consume an id.
func (l *CSVLog) Append(rec model.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	row, err := l.encode(l.next, rec)
	if err != nil {
		return err
	}
	if err := l.writeRow(row); err != nil {
		return fmt.Errorf("failed to append row %d to %s: %w", l.next, l.path, err)
	}
	l.next++
	return nil
}

// Rows returns the number of data rows written so far.
func (l *CSVLog) Rows() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.next
}

// Path returns the file the log writes to.
func (l *CSVLog) Path() string {
	return l.path
}

// Close flushes and closes the underlying file.
func (l *CSVLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		l.file.Close()
		return err
	}
	return l.file.Close()
}

func (l *CSVLog) writeRow(row []string) error {
	if err := l.writer.Write(row); err != nil {
		return err
	}
	l.writer.Flush()
	if err := l.writer.Error(); err != nil {
		return err
	}
	return l.file.Sync()
}

// WriteCSV writes a complete log (header plus one row per record) to path.
// The file is written next to path and renamed into place, so readers never
// observe a truncated log.
func WriteCSV(path string, s schema.Schema, records []model.Record, opts ...CSVOption) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	encode := encoder(s, opts)
	w := csv.NewWriter(tmp)
	if err := w.Write(s.Columns()); err != nil {
		tmp.Close()
		return err
	}
	for i, rec := range records {
		row, err := encode(i, rec)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("record %d: %w", i, err)
		}
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
