package runner

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when a run is requested while another run
// holds the single run slot.
var ErrRunInProgress = errors.New("a sync run is already in progress")

// RunFailedError indicates the application server reported the sync job
// as failed.
type RunFailedError struct {
	// Message is the failure description reported by the server
	Message string
}

// Error implements the error interface.
func (e *RunFailedError) Error() string {
	return e.Message
}

// TimeoutError indicates the poll attempt budget was exhausted before
// the job reached a terminal state.
type TimeoutError struct {
	// Attempts is the number of poll attempts made
	Attempts int
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sync timed out after %d status poll attempts", e.Attempts)
}
