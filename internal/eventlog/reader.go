package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// maxLineSize bounds a single log line. Events are small; anything
// larger is corruption.
const maxLineSize = 1024 * 1024

// ReadEvents parses the log file line by line and returns all events in
// insertion order. Lines that fail to parse are skipped: a crash during
// an append can leave a partial trailing line, and that must not make
// the rest of the log unreadable. A missing file yields no events.
func ReadEvents(path string) ([]SyncEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open sync log %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	var events []SyncEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event SyncEvent
		if err := json.Unmarshal(line, &event); err != nil {
			continue
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sync log %s: %w", path, err)
	}

	return events, nil
}

// Tail returns the most recent n events from the log, oldest first.
func Tail(path string, n int) ([]SyncEvent, error) {
	events, err := ReadEvents(path)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(events) <= n {
		return events, nil
	}
	return events[len(events)-n:], nil
}
