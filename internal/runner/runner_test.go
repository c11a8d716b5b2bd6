package runner_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsflow/feedsync-agent/internal/eventlog"
	"github.com/newsflow/feedsync-agent/internal/runner"
	"github.com/newsflow/feedsync-agent/internal/syncapi"
)

// fakeAppServer implements the application server's sync HTTP contract
// with a scripted sequence of status responses. The last status repeats
// once the script is exhausted.
type fakeAppServer struct {
	t *testing.T

	mu              sync.Mutex
	startStatusCode int
	syncID          uuid.UUID
	statusCodes     []int
	statusBodies    []string
	statusIdx       int
	metadata        []map[string]json.RawMessage

	server *httptest.Server
}

func newFakeAppServer(t *testing.T) *fakeAppServer {
	t.Helper()

	f := &fakeAppServer{
		t:               t,
		startStatusCode: http.StatusAccepted,
		syncID:          uuid.New(),
	}

	router := chi.NewRouter()
	router.Post("/api/sync", f.handleStart)
	router.Get("/api/sync/status/{syncId}", f.handleStatus)
	router.Post("/api/sync/metadata", f.handleMetadata)

	f.server = httptest.NewServer(router)
	f.server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(f.server.Close)

	return f
}

func (f *fakeAppServer) handleStart(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.WriteHeader(f.startStatusCode)
	if f.startStatusCode < http.StatusMultipleChoices {
		_, _ = w.Write([]byte(`{"syncId":"` + f.syncID.String() + `"}`))
	}
}

func (f *fakeAppServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if chi.URLParam(r, "syncId") != f.syncID.String() {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	idx := f.statusIdx
	if idx >= len(f.statusBodies) {
		idx = len(f.statusBodies) - 1
	} else {
		f.statusIdx++
	}
	if idx < 0 {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if f.statusCodes != nil && f.statusCodes[idx] != http.StatusOK {
		w.WriteHeader(f.statusCodes[idx])
		return
	}
	_, _ = w.Write([]byte(f.statusBodies[idx]))
}

func (f *fakeAppServer) handleMetadata(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var update map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.metadata = append(f.metadata, update)
	w.WriteHeader(http.StatusOK)
}

func (f *fakeAppServer) metadataUpdates() []map[string]json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]json.RawMessage(nil), f.metadata...)
}

// newTestRunner wires a runner against the fake server with compressed
// poll timing, and returns the path of its event log.
func newTestRunner(t *testing.T, f *fakeAppServer, opts ...runner.Option) (*runner.Runner, string) {
	t.Helper()

	logPath := filepath.Join(t.TempDir(), "sync.jsonl")
	client := syncapi.NewClient(f.server.URL, 5*time.Second)
	writer := eventlog.NewFileWriter(logPath)

	opts = append([]runner.Option{
		runner.WithPollInterval(time.Millisecond),
		runner.WithMaxPollAttempts(20),
	}, opts...)

	return runner.New(client, writer, opts...), logPath
}

func readEvents(t *testing.T, logPath string) []eventlog.SyncEvent {
	t.Helper()
	events, err := eventlog.ReadEvents(logPath)
	require.NoError(t, err)
	return events
}

func TestRunner_Run_Completed(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.statusBodies = []string{
		`{"status":"running","progress":40,"message":"fetching feeds"}`,
		`{"status":"running","progress":55}`,
		`{"status":"completed","feedsCount":10,"articlesCount":200}`,
	}

	run, logPath := newTestRunner(t, f)
	require.NoError(t, run.Run(context.Background(), eventlog.TriggerCronMorning))

	events := readEvents(t, logPath)
	require.Len(t, events, 3)

	assert.Equal(t, eventlog.StatusStarted, events[0].Status)
	assert.Equal(t, eventlog.TriggerCronMorning, events[0].Trigger)

	// Progress 55 is not on a multiple-of-20 boundary; only 40 is logged.
	assert.Equal(t, eventlog.StatusRunning, events[1].Status)
	require.NotNil(t, events[1].Progress)
	assert.Equal(t, 40, *events[1].Progress)
	assert.Equal(t, "fetching feeds", events[1].Message)
	assert.Equal(t, f.syncID.String(), events[1].SyncID)

	assert.Equal(t, eventlog.StatusCompleted, events[2].Status)
	assert.Equal(t, 10, events[2].Feeds)
	assert.Equal(t, 200, events[2].Articles)
	assert.GreaterOrEqual(t, events[2].Duration, int64(0))
	assert.Equal(t, f.syncID.String(), events[2].SyncID)

	updates := f.metadataUpdates()
	require.Len(t, updates, 1)
	assert.JSONEq(t, `"success"`, string(updates[0]["last_sync_status"]))
	assert.JSONEq(t, `null`, string(updates[0]["last_sync_error"]))
	assert.JSONEq(t, `{"increment":1}`, string(updates[0]["sync_success_count"]))
	assert.Contains(t, updates[0], "last_sync_time")
}

func TestRunner_Run_StartFailure(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.startStatusCode = http.StatusInternalServerError

	run, logPath := newTestRunner(t, f)
	err := run.Run(context.Background(), eventlog.TriggerCronAfternoon)

	var startErr *syncapi.StartError
	require.ErrorAs(t, err, &startErr)
	assert.Equal(t, http.StatusInternalServerError, startErr.StatusCode)

	events := readEvents(t, logPath)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.StatusStarted, events[0].Status)
	assert.Equal(t, eventlog.StatusError, events[1].Status)
	assert.Contains(t, events[1].Error, "500")
	for _, event := range events {
		assert.NotEqual(t, eventlog.StatusCompleted, event.Status)
	}

	updates := f.metadataUpdates()
	require.Len(t, updates, 1)
	assert.JSONEq(t, `"failed"`, string(updates[0]["last_sync_status"]))
	assert.JSONEq(t, `{"increment":1}`, string(updates[0]["sync_failure_count"]))
	assert.NotContains(t, updates[0], "sync_success_count")
}

func TestRunner_Run_JobFailed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		expectedMsg string
	}{
		{
			name:        "failure with reported error",
			body:        `{"status":"failed","error":"upstream provider rejected token"}`,
			expectedMsg: "upstream provider rejected token",
		},
		{
			name:        "failure without error uses default",
			body:        `{"status":"failed"}`,
			expectedMsg: "sync job failed",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFakeAppServer(t)
			f.statusBodies = []string{
				`{"status":"running","progress":20}`,
				tt.body,
			}

			run, logPath := newTestRunner(t, f)
			err := run.Run(context.Background(), eventlog.TriggerManual)

			var failedErr *runner.RunFailedError
			require.ErrorAs(t, err, &failedErr)
			assert.Equal(t, tt.expectedMsg, failedErr.Message)

			events := readEvents(t, logPath)
			require.Len(t, events, 3)
			assert.Equal(t, eventlog.StatusError, events[2].Status)
			assert.Equal(t, tt.expectedMsg, events[2].Error)

			updates := f.metadataUpdates()
			require.Len(t, updates, 1)
			assert.JSONEq(t, `"failed"`, string(updates[0]["last_sync_status"]))
			assert.JSONEq(t, `{"increment":1}`, string(updates[0]["sync_failure_count"]))
		})
	}
}

func TestRunner_Run_Timeout(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.statusBodies = []string{`{"status":"running"}`}

	run, logPath := newTestRunner(t, f, runner.WithMaxPollAttempts(3))
	err := run.Run(context.Background(), eventlog.TriggerCronMorning)

	var timeoutErr *runner.TimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 3, timeoutErr.Attempts)

	events := readEvents(t, logPath)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.StatusError, events[1].Status)
	assert.Contains(t, events[1].Error, "timed out")

	updates := f.metadataUpdates()
	require.Len(t, updates, 1)
	assert.JSONEq(t, `"failed"`, string(updates[0]["last_sync_status"]))
}

func TestRunner_Run_ProgressBoundaries(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.statusBodies = []string{
		`{"status":"running","progress":10}`,
		`{"status":"running","progress":20}`,
		`{"status":"running","progress":20}`,
		`{"status":"running","progress":40}`,
		`{"status":"running","progress":55}`,
		`{"status":"running","progress":60}`,
		`{"status":"running"}`,
		`{"status":"completed","feedsCount":3,"articlesCount":42}`,
	}

	run, logPath := newTestRunner(t, f)
	require.NoError(t, run.Run(context.Background(), eventlog.TriggerManual))

	events := readEvents(t, logPath)

	var reported []int
	for _, event := range events {
		if event.Status == eventlog.StatusRunning {
			require.NotNil(t, event.Progress)
			reported = append(reported, *event.Progress)
		}
	}

	// One event per crossed multiple-of-20 boundary; a repeated value and
	// off-boundary values are not logged.
	assert.Equal(t, []int{20, 40, 60}, reported)
	assert.Equal(t, eventlog.StatusStarted, events[0].Status)
	assert.Equal(t, eventlog.StatusCompleted, events[len(events)-1].Status)
}

func TestRunner_Run_TransientPollFailuresAreSwallowed(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.statusCodes = []int{
		http.StatusBadGateway,
		http.StatusInternalServerError,
		http.StatusOK,
	}
	f.statusBodies = []string{
		``,
		``,
		`{"status":"completed","feedsCount":5,"articlesCount":80}`,
	}

	run, logPath := newTestRunner(t, f)
	require.NoError(t, run.Run(context.Background(), eventlog.TriggerCronAfternoon))

	events := readEvents(t, logPath)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.StatusStarted, events[0].Status)
	assert.Equal(t, eventlog.StatusCompleted, events[1].Status)
}

func TestRunner_Run_LogWriteFailureDoesNotAbortRun(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.statusBodies = []string{`{"status":"completed","feedsCount":1,"articlesCount":1}`}

	// Writer pointed at a directory that does not exist: every append fails.
	badPath := filepath.Join(t.TempDir(), "missing", "sync.jsonl")
	client := syncapi.NewClient(f.server.URL, 5*time.Second)
	run := runner.New(client, eventlog.NewFileWriter(badPath),
		runner.WithPollInterval(time.Millisecond),
		runner.WithMaxPollAttempts(5),
	)

	require.NoError(t, run.Run(context.Background(), eventlog.TriggerManual))

	// The run still reported its outcome despite every log write failing.
	updates := f.metadataUpdates()
	require.Len(t, updates, 1)
	assert.JSONEq(t, `"success"`, string(updates[0]["last_sync_status"]))
}

func TestRunner_Run_MetadataFailureDoesNotFailRun(t *testing.T) {
	t.Parallel()

	f := newFakeAppServer(t)
	f.statusBodies = []string{`{"status":"completed"}`}

	// Stand-in metadata endpoint that always fails.
	router := chi.NewRouter()
	router.Post("/api/sync", f.handleStart)
	router.Get("/api/sync/status/{syncId}", f.handleStatus)
	router.Post("/api/sync/metadata", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	server := httptest.NewServer(router)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)

	logPath := filepath.Join(t.TempDir(), "sync.jsonl")
	run := runner.New(
		syncapi.NewClient(server.URL, 5*time.Second),
		eventlog.NewFileWriter(logPath),
		runner.WithPollInterval(time.Millisecond),
		runner.WithMaxPollAttempts(5),
	)

	require.NoError(t, run.Run(context.Background(), eventlog.TriggerManual))

	events := readEvents(t, logPath)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.StatusCompleted, events[1].Status)
}

func TestRunner_Run_SingleRunSlot(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	jobID := uuid.New()

	router := chi.NewRouter()
	router.Post("/api/sync", func(w http.ResponseWriter, _ *http.Request) {
		close(started)
		<-release
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"syncId":"` + jobID.String() + `"}`))
	})
	router.Get("/api/sync/status/{syncId}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"completed"}`))
	})
	router.Post("/api/sync/metadata", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	server := httptest.NewServer(router)
	server.Config.SetKeepAlivesEnabled(false)
	t.Cleanup(server.Close)

	logPath := filepath.Join(t.TempDir(), "sync.jsonl")
	run := runner.New(
		syncapi.NewClient(server.URL, 5*time.Second),
		eventlog.NewFileWriter(logPath),
		runner.WithPollInterval(time.Millisecond),
		runner.WithMaxPollAttempts(5),
	)

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- run.Run(context.Background(), eventlog.TriggerCronMorning)
	}()

	// The first run holds the slot while blocked in the start request;
	// a second run must be rejected, not queued.
	<-started
	err := run.Run(context.Background(), eventlog.TriggerCronAfternoon)
	require.ErrorIs(t, err, runner.ErrRunInProgress)

	close(release)
	require.NoError(t, <-firstDone)

	// Only the first run left events behind.
	events := readEvents(t, logPath)
	require.Len(t, events, 2)
	assert.Equal(t, eventlog.TriggerCronMorning, events[0].Trigger)
	assert.Equal(t, eventlog.TriggerCronMorning, events[1].Trigger)
}
