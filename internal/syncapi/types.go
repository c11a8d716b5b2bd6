package syncapi

// JobStatus is the state the application server reports for a sync job.
type JobStatus string

const (
	// JobStatusRunning means the job has not reached a terminal state yet
	JobStatusRunning JobStatus = "running"

	// JobStatusCompleted means the job finished successfully
	JobStatusCompleted JobStatus = "completed"

	// JobStatusFailed means the job finished with an error
	JobStatusFailed JobStatus = "failed"
)

// startResponse is the body returned by the sync trigger endpoint.
type startResponse struct {
	SyncID string `json:"syncId"`
}

// StatusResponse is the body returned by the sync status endpoint.
type StatusResponse struct {
	// Status is the current job state
	Status JobStatus `json:"status"`

	// Progress is the completion percentage (0-100), if the server reports one
	Progress *int `json:"progress,omitempty"`

	// Message is a human-readable progress note
	Message string `json:"message,omitempty"`

	// Error describes the failure when Status is "failed"
	Error string `json:"error,omitempty"`

	// FeedsCount is the number of feeds synchronized, set on completion
	FeedsCount int `json:"feedsCount,omitempty"`

	// ArticlesCount is the number of articles synchronized, set on completion
	ArticlesCount int `json:"articlesCount,omitempty"`
}

// SyncOutcome is the aggregate result value sent in a metadata update.
type SyncOutcome string

const (
	// OutcomeSuccess records a successful run
	OutcomeSuccess SyncOutcome = "success"

	// OutcomeFailed records a failed run
	OutcomeFailed SyncOutcome = "failed"
)

// IncrementOp expresses an additive counter update. The metadata store
// applies the delta to its current value, so concurrent or repeated
// updates never clobber history.
type IncrementOp struct {
	Increment int `json:"increment"`
}

// MetadataUpdate is a partial update of the shared sync-metadata record.
// Omitted fields are left untouched by the server; LastSyncError is
// always sent so a success can clear a previous failure with an explicit
// null.
type MetadataUpdate struct {
	LastSyncTime     string       `json:"last_sync_time,omitempty"`
	LastSyncStatus   SyncOutcome  `json:"last_sync_status"`
	LastSyncError    *string      `json:"last_sync_error"`
	SyncSuccessCount *IncrementOp `json:"sync_success_count,omitempty"`
	SyncFailureCount *IncrementOp `json:"sync_failure_count,omitempty"`
}
