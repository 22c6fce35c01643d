// Package provenance persists the three per-run records (inputs, runtime,
// outputs) as sorted-key JSON under <outdir>/logs. The absence of
// outputs.json after a run is the primary machine-readable failure signal.
package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteError reports a failure to create the logs directory or serialize a
// record. It is surfaced to the caller but never undoes completed pipeline
// work.
type WriteError struct {
	Kind string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s provenance record: %v", e.Kind, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Recorder writes provenance records under a fixed output directory. It
// keeps no state between writes.
type Recorder struct {
	outdir string
}

// NewRecorder returns a recorder targeting <outdir>/logs.
func NewRecorder(outdir string) *Recorder {
	return &Recorder{outdir: outdir}
}

// Path returns the file a record of the given kind is written to.
func (r *Recorder) Path(kind string) string {
	return filepath.Join(r.outdir, "logs", kind+".json")
}

// Record serializes data to <outdir>/logs/<kind>.json, creating the logs
// directory if absent. Map keys are emitted in sorted order, so repeated
// runs produce byte-identical records for identical data.
func (r *Recorder) Record(kind string, data map[string]interface{}) error {
	dir := filepath.Join(r.outdir, "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &WriteError{Kind: kind, Err: err}
	}
	payload, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return &WriteError{Kind: kind, Err: err}
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(r.Path(kind), payload, 0644); err != nil {
		return &WriteError{Kind: kind, Err: err}
	}
	return nil
}
