// Package eventlog records sync runs as an append-only stream of
// newline-delimited JSON events.
package eventlog

import "time"

// Trigger identifies why a sync run started.
type Trigger string

const (
	// TriggerCronMorning is attached to scheduled firings before local noon
	TriggerCronMorning Trigger = "cron-2am"

	// TriggerCronAfternoon is attached to scheduled firings at or after local noon
	TriggerCronAfternoon Trigger = "cron-2pm"

	// TriggerManual is attached to runs started by an operator
	TriggerManual Trigger = "manual"
)

// Status represents the phase a sync run is in when an event is emitted.
type Status string

const (
	// StatusStarted marks the beginning of a run
	StatusStarted Status = "started"

	// StatusRunning marks an in-flight progress report
	StatusRunning Status = "running"

	// StatusCompleted marks a successful terminal event
	StatusCompleted Status = "completed"

	// StatusError marks a failed terminal event
	StatusError Status = "error"
)

// timestampLayout matches the ISO 8601 format existing log consumers expect.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// SyncEvent is one entry in the sync log. Field names are part of the
// on-disk JSONL format and must not change.
type SyncEvent struct {
	// Timestamp is the ISO 8601 emission time
	Timestamp string `json:"timestamp"`

	// Trigger identifies why the run that emitted this event started
	Trigger Trigger `json:"trigger"`

	// Status is the run phase this event reports
	Status Status `json:"status"`

	// SyncID is the job identifier returned by the sync trigger endpoint
	SyncID string `json:"syncId,omitempty"`

	// Progress is the reported completion percentage (0-100), if any
	Progress *int `json:"progress,omitempty"`

	// Message carries a human-readable progress or status note
	Message string `json:"message,omitempty"`

	// Duration is the elapsed run time in milliseconds, set on terminal events
	Duration int64 `json:"duration,omitempty"`

	// Feeds is the number of feeds synchronized, set on completion
	Feeds int `json:"feeds,omitempty"`

	// Articles is the number of articles synchronized, set on completion
	Articles int `json:"articles,omitempty"`

	// Error is the failure description, set on error events
	Error string `json:"error,omitempty"`
}

// NewEvent creates a SyncEvent stamped with the current UTC time.
func NewEvent(trigger Trigger, status Status) *SyncEvent {
	return &SyncEvent{
		Timestamp: time.Now().UTC().Format(timestampLayout),
		Trigger:   trigger,
		Status:    status,
	}
}

// Time parses the event timestamp. Returns the zero time if the
// timestamp is malformed.
func (e *SyncEvent) Time() time.Time {
	t, err := time.Parse(timestampLayout, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}
