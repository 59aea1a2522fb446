/*
PURPOSE:
  Writes training records to a JSON Lines journal (NDJSON) and reads it back.
  Optimized for machine parsing and for rebuilding CSV logs.

REQUIREMENTS:
  User-specified:
  - JSON output for easier parsing.

  Implementation-discovered:
  - JSON Lines is append-friendly: one iteration, one line.
  - The journal keeps full fidelity (timestamps, unmeasured objectives, host load),
    so `forest-trainer export` can regenerate a CSV in either row layout.

ARCHITECTURE INTEGRATION:
  - Called by: internal/trainer (Write), internal/cli export (ReadJournal)
  - Consumes: internal/model.Record, internal/monitor.Sample

ERROR HANDLING:
  - Returns error on file creation or write failure.
  - ReadJournal reports the line number of the first malformed entry.

IMPLEMENTATION RULES:
  - Use encoding/json.NewEncoder.
  - Thread-safe.

USAGE:
  w, err := output.NewJSONWriter("run.jsonl")
  w.Write(entry)
  w.Close()

SELF-HEALING INSTRUCTIONS:
  - None specific.

RELATED FILES:
  - internal/model/types.go

MAINTENANCE:
  - Only add fields; old journals must stay readable.
*/

package output

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/daryltucker/forest-trainer/internal/model"
	"github.com/daryltucker/forest-trainer/internal/monitor"
)

// maxJournalLine bounds a single journal entry when reading.
const maxJournalLine = 4 << 20

// Entry is one journal line.
type Entry struct {
	SessionID string `json:"session_id"`
	Session   string `json:"session"`
	Iteration int    `json:"iteration"`
	model.Record
	Host *monitor.Sample `json:"host,omitempty"`
}

// JSONWriter handles writing entries to a JSON Lines file.
type JSONWriter struct {
	file    *os.File
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter creates a new JSONWriter, truncating any existing file.
func NewJSONWriter(path string) (*JSONWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	return &JSONWriter{
		file:    f,
		encoder: json.NewEncoder(f),
	}, nil
}

// Write writes a single entry as a JSON line.
func (jw *JSONWriter) Write(e Entry) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.encoder.Encode(e); err != nil {
		return err
	}
	return jw.file.Sync()
}

// Close closes the underlying file.
func (jw *JSONWriter) Close() error {
	return jw.file.Close()
}

// ReadJournal reads every entry of a JSON Lines journal in file order.
func ReadJournal(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJournalLine)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("%s:%d: invalid journal entry: %w", path, line, err)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
