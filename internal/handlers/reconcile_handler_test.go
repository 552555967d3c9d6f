package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"autoshard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	running     bool
	schedule    string
	dryRun      bool
	lastTrigger *bool
	runErr      error
}

func (f *fakeScheduler) Start() error {
	if f.running {
		return errors.New("scheduler already running")
	}
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() error {
	if !f.running {
		return errors.New("scheduler not running")
	}
	f.running = false
	return nil
}

func (f *fakeScheduler) GetStatus() models.SchedulerStatus {
	return models.SchedulerStatus{IsRunning: f.running, CronSchedule: f.schedule, DryRun: f.dryRun}
}

func (f *fakeScheduler) TriggerRun(_ context.Context, dryRun bool) ([]models.ExecutionReport, error) {
	f.lastTrigger = &dryRun
	return []models.ExecutionReport{{Database: "default", DryRun: dryRun}}, f.runErr
}

func (f *fakeScheduler) UpdateConfig(cronSchedule string, dryRun *bool) error {
	if cronSchedule == "bogus" {
		return errors.New("invalid cron schedule")
	}
	if cronSchedule != "" {
		f.schedule = cronSchedule
	}
	if dryRun != nil {
		f.dryRun = *dryRun
	}
	return nil
}

type fakeHistory struct {
	runs      []models.RunRecord
	lastLimit int
	getErr    error
}

func (f *fakeHistory) ListRuns(_ context.Context, limit int) ([]models.RunRecord, error) {
	f.lastLimit = limit
	return f.runs, nil
}

func (f *fakeHistory) GetRun(_ context.Context, id string) (*models.RunRecord, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	for i := range f.runs {
		if f.runs[i].ID == id {
			return &f.runs[i], nil
		}
	}
	return nil, fmt.Errorf("failed to get run %s: %w", id, sql.ErrNoRows)
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestHandler_StartStop(t *testing.T) {
	sched := &fakeScheduler{}
	h := NewHandler(sched, nil, nil).Routes()

	rec, resp := do(t, h, http.MethodPost, "/api/reconcile/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.True(t, sched.running)

	rec, resp = do(t, h, http.MethodPost, "/api/reconcile/start", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, resp.Success)
	assert.Equal(t, "scheduler already running", resp.Error)

	rec, _ = do(t, h, http.MethodPost, "/api/reconcile/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, sched.running)
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := NewHandler(&fakeScheduler{}, nil, nil).Routes()

	rec, resp := do(t, h, http.MethodGet, "/api/reconcile/start", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "Method not allowed", resp.Error)
}

func TestHandler_Run(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		runErr     error
		wantCode   int
		wantDryRun bool
	}{
		{name: "execute", target: "/api/reconcile/run", wantCode: http.StatusOK},
		{name: "list", target: "/api/reconcile/run?list=true", wantCode: http.StatusOK, wantDryRun: true},
		{name: "failure", target: "/api/reconcile/run", runErr: errors.New("reconcile failed"), wantCode: http.StatusInternalServerError},
		{name: "bad list flag", target: "/api/reconcile/run?list=maybe", wantCode: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sched := &fakeScheduler{runErr: tt.runErr}
			h := NewHandler(sched, nil, nil).Routes()

			rec, resp := do(t, h, http.MethodPost, tt.target, "")
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusBadRequest {
				assert.Nil(t, sched.lastTrigger)
				return
			}
			require.NotNil(t, sched.lastTrigger)
			assert.Equal(t, tt.wantDryRun, *sched.lastTrigger)
			assert.Equal(t, tt.runErr == nil, resp.Success)
		})
	}
}

func TestHandler_Config(t *testing.T) {
	sched := &fakeScheduler{schedule: "0 * * * *", dryRun: true}
	h := NewHandler(sched, nil, nil).Routes()

	rec, resp := do(t, h, http.MethodPut, "/api/reconcile/config", `{"schedule":"*/5 * * * *","dryRun":false}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "*/5 * * * *", sched.schedule)
	assert.False(t, sched.dryRun)

	rec, _ = do(t, h, http.MethodPut, "/api/reconcile/config", `{"schedule":"bogus"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, resp = do(t, h, http.MethodPut, "/api/reconcile/config", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid request body", resp.Error)
}

func TestHandler_History(t *testing.T) {
	hist := &fakeHistory{runs: []models.RunRecord{{ID: "a", Database: "default"}, {ID: "b", Database: "shard_0"}}}
	h := NewHandler(&fakeScheduler{}, hist, nil).Routes()

	rec, resp := do(t, h, http.MethodGet, "/api/reconcile/history?limit=5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, hist.lastLimit)
	assert.Len(t, resp.Data, 2)

	rec, _ = do(t, h, http.MethodGet, "/api/reconcile/history?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, h, http.MethodGet, "/api/reconcile/history/b", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, resp = do(t, h, http.MethodGet, "/api/reconcile/history/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Run not found", resp.Error)
}

func TestHandler_RunDetailStoreFailure(t *testing.T) {
	hist := &fakeHistory{getErr: errors.New("database disk image is malformed")}
	h := NewHandler(&fakeScheduler{}, hist, nil).Routes()

	rec, resp := do(t, h, http.MethodGet, "/api/reconcile/history/a", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "malformed")
}

func TestHandler_HistoryDisabled(t *testing.T) {
	h := NewHandler(&fakeScheduler{}, nil, nil).Routes()

	rec, resp := do(t, h, http.MethodGet, "/api/reconcile/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Journal is disabled", resp.Error)
}

func TestHandler_Health(t *testing.T) {
	h := NewHandler(&fakeScheduler{}, nil, nil).Routes()

	rec, resp := do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}
