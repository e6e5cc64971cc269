package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/mocks"

	"dev/bravebird/messenger-e2e/pkg/logging"
	"dev/bravebird/messenger-e2e/pkg/models"
)

type fakeStore struct {
	mu       sync.Mutex
	runs     map[string]*models.SuiteRun
	results  map[string][]models.ScenarioResult
	statuses map[string]models.RunStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:     map[string]*models.SuiteRun{},
		results:  map[string][]models.ScenarioResult{},
		statuses: map[string]models.RunStatus{},
	}
}

func (f *fakeStore) CreateSuiteRun(_ context.Context, run *models.SuiteRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeStore) GetSuiteRun(_ context.Context, id string) (*models.SuiteRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (f *fakeStore) ListSuiteRuns(_ context.Context, limit int) ([]models.SuiteRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SuiteRun
	for _, r := range f.runs {
		if len(out) == limit {
			break
		}
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeStore) UpdateSuiteRunStatus(_ context.Context, id string, status models.RunStatus, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
	if r, ok := f.runs[id]; ok {
		r.Status = status
		r.ErrorMessage = msg
	}
	return nil
}

func (f *fakeStore) SetTemporalIDs(_ context.Context, id, workflowID, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.runs[id]; ok {
		r.TemporalWorkflowID = workflowID
		r.TemporalRunID = runID
	}
	return nil
}

func (f *fakeStore) GetScenarioResults(_ context.Context, runID string) ([]models.ScenarioResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[runID], nil
}

func newTestServer(t *testing.T, store Store, tc *mocks.Client) *httptest.Server {
	t.Helper()
	h := NewHandlers(store, tc, Config{
		TaskQueue:       "messenger-e2e",
		ScreenshotDir:   t.TempDir(),
		Parallelism:     1,
		RetryAttempts:   2,
		ScenarioTimeout: 10 * time.Minute,
		PollInterval:    10 * time.Millisecond,
	}, logging.Discard())
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &mocks.Client{})

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListScenarios(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &mocks.Client{})

	resp, err := http.Get(srv.URL + "/api/scenarios")
	require.NoError(t, err)
	defer resp.Body.Close()

	var infos []models.ScenarioInfo
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&infos))
	require.Len(t, infos, 6)
	assert.Equal(t, "Create contact", infos[0].Name)
}

func TestCreateRun(t *testing.T) {
	store := newFakeStore()
	tc := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("messenger-e2e-wf")
	run.On("GetRunID").Return("temporal-run")

	var input models.SuiteInput
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			input = args.Get(3).(models.SuiteInput)
		}).
		Return(run, nil).Once()

	srv := newTestServer(t, store, tc)

	body := `{"scenarios":["Change avatar"],"update_snapshots":"true","parallelism":2}`
	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	runID := out["run_id"].(string)

	assert.Equal(t, runID, input.RunID)
	assert.Equal(t, []string{"Change avatar"}, input.Scenarios)
	assert.Equal(t, "all", input.UpdateSnapshots)
	assert.Equal(t, 2, input.Parallelism)
	assert.Equal(t, 2, input.RetryAttempts)
	assert.Equal(t, 600, input.Timeout)

	stored, _ := store.GetSuiteRun(context.Background(), runID)
	require.NotNil(t, stored)
	assert.Equal(t, "messenger-e2e-wf", stored.TemporalWorkflowID)
	assert.Equal(t, "temporal-run", stored.TemporalRunID)
	tc.AssertExpectations(t)
}

func TestCreateRun_DefaultsToWholeSuite(t *testing.T) {
	tc := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	run.On("GetID").Return("wf")
	run.On("GetRunID").Return("r")
	var input models.SuiteInput
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { input = args.Get(3).(models.SuiteInput) }).
		Return(run, nil)

	srv := newTestServer(t, newFakeStore(), tc)
	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Len(t, input.Scenarios, 6)
	assert.Equal(t, "none", input.UpdateSnapshots)
	assert.Equal(t, 1, input.Parallelism)
}

func TestCreateRun_Invalid(t *testing.T) {
	srv := newTestServer(t, newFakeStore(), &mocks.Client{})

	for name, body := range map[string]string{
		"malformed":        `{`,
		"unknown scenario": `{"scenarios":["Teleport"]}`,
		"bad update mode":  `{"update_snapshots":"sometimes"}`,
		"parallelism":      `{"parallelism":9}`,
		"empty name":       `{"scenarios":[""]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestCreateRun_WorkflowStartFails(t *testing.T) {
	store := newFakeStore()
	tc := &mocks.Client{}
	tc.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal unavailable"))

	srv := newTestServer(t, store, tc)
	resp, err := http.Post(srv.URL+"/api/runs", "application/json", bytes.NewBufferString(`{"scenarios":["Read status"]}`))
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	require.Len(t, store.statuses, 1)
	for _, status := range store.statuses {
		assert.Equal(t, models.StatusFailed, status)
	}
}

func TestGetRun(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.CreateSuiteRun(context.Background(), &models.SuiteRun{ID: "run-1", Status: models.StatusFailed}))
	store.results["run-1"] = []models.ScenarioResult{{
		ID:       "r1",
		Scenario: "Change avatar",
		Status:   models.StatusFailed,
		Attempts: []models.VerificationAttempt{{Verification: "Check profile picture syncs", Index: 0}},
	}}
	srv := newTestServer(t, store, &mocks.Client{})

	resp, err := http.Get(srv.URL + "/api/runs/run-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var run models.SuiteRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	require.Len(t, run.Results, 1)
	assert.Len(t, run.Results[0].Attempts, 1)

	resp, err = http.Get(srv.URL + "/api/runs/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	store := newFakeStore()
	srv := newTestServer(t, store, &mocks.Client{})

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	body := new(bytes.Buffer)
	body.ReadFrom(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "[]", strings.TrimSpace(body.String()))

	resp, err = http.Get(srv.URL + "/api/runs?limit=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCancelRun(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.CreateSuiteRun(context.Background(), &models.SuiteRun{
		ID:                 "run-1",
		Status:             models.StatusRunning,
		TemporalWorkflowID: "wf",
		TemporalRunID:      "r",
	}))
	require.NoError(t, store.CreateSuiteRun(context.Background(), &models.SuiteRun{ID: "done", Status: models.StatusSuccess}))

	tc := &mocks.Client{}
	tc.On("CancelWorkflow", mock.Anything, "wf", "r").Return(nil).Once()
	srv := newTestServer(t, store, tc)

	resp, err := http.Post(srv.URL+"/api/runs/run-1/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusCanceled, store.statuses["run-1"])
	tc.AssertExpectations(t)

	resp, err = http.Post(srv.URL+"/api/runs/done/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStreamRunUpdates_FinishedRun(t *testing.T) {
	store := newFakeStore()
	require.NoError(t, store.CreateSuiteRun(context.Background(), &models.SuiteRun{ID: "run-1", Status: models.StatusSuccess}))
	store.results["run-1"] = []models.ScenarioResult{{ID: "r1", Scenario: "Read status", Status: models.StatusSuccess}}
	srv := newTestServer(t, store, &mocks.Client{})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/run-1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var msg struct {
		Type    string `json:"type"`
		Payload struct {
			Status  models.RunStatus        `json:"status"`
			Results []models.ScenarioResult `json:"results"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "run_update", msg.Type)
	assert.Equal(t, models.StatusSuccess, msg.Payload.Status)
	assert.Len(t, msg.Payload.Results, 1)

	// terminal status closes the stream
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}

func TestServeScreenshot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "change-avatar.png"), []byte("png"), 0644))

	h := NewHandlers(newFakeStore(), &mocks.Client{}, Config{ScreenshotDir: dir}, logging.Discard())
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/screenshots/change-avatar.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/screenshots/missing.png")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNoStore(t *testing.T) {
	h := NewHandlers(nil, &mocks.Client{}, Config{}, logging.Discard())
	srv := httptest.NewServer(NewRouter(h))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
