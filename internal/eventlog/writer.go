package eventlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Writer defines the interface for appending sync events to the log.
type Writer interface {
	// Append serializes the event to one line of JSON and appends it to the log.
	// Appending never mutates previously written lines.
	Append(ctx context.Context, event *SyncEvent) error
}

// fileWriter implements Writer against a local JSONL file. The file is
// opened, appended, and closed on every write; no handle is held between
// events.
type fileWriter struct {
	path string
}

// NewFileWriter creates a file-backed event log writer. The parent
// directory must exist before the first append; see EnsureLogDir.
func NewFileWriter(path string) Writer {
	return &fileWriter{path: path}
}

// Append writes one event as a single newline-terminated JSON line.
func (w *fileWriter) Append(_ context.Context, event *SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open sync log %s: %w", w.path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to append to sync log %s: %w", w.path, err)
	}

	return nil
}

// EnsureLogDir creates the parent directory of the log file if it does
// not exist yet.
func EnsureLogDir(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create log directory %s: %w", dir, err)
	}
	return nil
}
