package syncapi

import "fmt"

// StartError indicates the sync trigger endpoint rejected the start
// request with a non-2xx status.
type StartError struct {
	// StatusCode is the HTTP status returned by the trigger endpoint
	StatusCode int
}

// Error implements the error interface.
func (e *StartError) Error() string {
	return fmt.Sprintf("sync start request failed with status %d", e.StatusCode)
}
