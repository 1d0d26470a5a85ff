package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"example.com/timeclock/internal/auth"
	"example.com/timeclock/internal/domain"
	"example.com/timeclock/internal/persistence/memory"
)

type stubClock struct {
	now time.Time
}

func (c *stubClock) Now() time.Time { return c.now }

type stubWorkers struct{}

func (stubWorkers) Exists(context.Context, uuid.UUID) (bool, error)   { return true, nil }
func (stubWorkers) IsActive(context.Context, uuid.UUID) (bool, error) { return true, nil }

type stubTasks struct{}

func (stubTasks) Exists(context.Context, uuid.UUID) (bool, error)                { return true, nil }
func (stubTasks) IsEnabled(context.Context, uuid.UUID) (bool, error)             { return true, nil }
func (stubTasks) IsEligible(context.Context, uuid.UUID, uuid.UUID) (bool, error) { return true, nil }

type testEnv struct {
	mux   *http.ServeMux
	clock *stubClock
}

func newTestEnv() *testEnv {
	clock := &stubClock{now: time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)}
	tracking := domain.NewService(memory.NewActivityStore(), stubWorkers{}, stubTasks{}, clock)
	attendance := domain.NewAttendanceService(memory.NewAttendanceStore(), stubWorkers{}, clock)

	handler := NewHandler(tracking, attendance)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	return &testEnv{mux: mux, clock: clock}
}

func (e *testEnv) do(t *testing.T, method, path, body string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)

	if len(scopes) > 0 {
		scopeSet := make(map[string]struct{}, len(scopes))
		for _, scope := range scopes {
			scopeSet[scope] = struct{}{}
		}
		claims := &auth.Claims{
			Subject:   "tester",
			Scopes:    scopeSet,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		req = req.WithContext(auth.WithClaims(req.Context(), claims))
	}

	rr := httptest.NewRecorder()
	e.mux.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) startTask(t *testing.T, workerID, taskID string) ActivityView {
	t.Helper()

	body := `{"worker_id":"` + workerID + `","task_id":"` + taskID + `","kind":"task"}`
	rr := e.do(t, http.MethodPost, "/v1/activities/start", body, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}

	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return view
}

func TestStartPauseResumeCompleteFlow(t *testing.T) {
	env := newTestEnv()
	workerID := uuid.NewString()
	taskID := uuid.NewString()

	view := env.startTask(t, workerID, taskID)
	if view.Status != "in_progress" {
		t.Fatalf("expected in_progress got %s", view.Status)
	}
	if view.TaskID == nil || *view.TaskID != taskID {
		t.Fatalf("unexpected task id in response: %+v", view.TaskID)
	}

	env.clock.now = env.clock.now.Add(30 * time.Minute)
	rr := env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/pause", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("pause: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var paused ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &paused); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if paused.Status != "paused" || paused.ElapsedMinutes != 30 {
		t.Fatalf("unexpected paused view: status=%s elapsed=%d", paused.Status, paused.ElapsedMinutes)
	}

	env.clock.now = env.clock.now.Add(10 * time.Minute)
	rr = env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/resume", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("resume: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var resumed ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &resumed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resumed.TotalPausedMinutes != 10 {
		t.Fatalf("expected 10 paused minutes got %d", resumed.TotalPausedMinutes)
	}

	env.clock.now = env.clock.now.Add(20 * time.Minute)
	rr = env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/complete", `{"notes":"done"}`, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("complete: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var completed ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &completed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if completed.Status != "completed" {
		t.Fatalf("expected completed got %s", completed.Status)
	}
	if completed.FinalDurationMinutes == nil || *completed.FinalDurationMinutes != 50 {
		t.Fatalf("unexpected final duration: %+v", completed.FinalDurationMinutes)
	}
	if completed.Notes != "done" {
		t.Fatalf("expected notes merged, got %q", completed.Notes)
	}
}

func TestStartConflictReturnsActiveRecord(t *testing.T) {
	env := newTestEnv()
	workerID := uuid.NewString()

	first := env.startTask(t, workerID, uuid.NewString())

	body := `{"worker_id":"` + workerID + `","kind":"break"}`
	rr := env.do(t, http.MethodPost, "/v1/activities/start", body, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}

	var resp ConflictResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Activity == nil || resp.Activity.ID != first.ID {
		t.Fatalf("expected conflicting record %s in body, got %+v", first.ID, resp.Activity)
	}
}

func TestStartValidation(t *testing.T) {
	env := newTestEnv()

	cases := []struct {
		name string
		body string
	}{
		{"missing worker", `{"kind":"break"}`},
		{"unknown kind", `{"worker_id":"` + uuid.NewString() + `","kind":"nap"}`},
		{"task without task id", `{"worker_id":"` + uuid.NewString() + `","kind":"task"}`},
		{"malformed task id", `{"worker_id":"` + uuid.NewString() + `","kind":"task","task_id":"nope"}`},
	}

	for _, tc := range cases {
		rr := env.do(t, http.MethodPost, "/v1/activities/start", tc.body, auth.ScopeTrackingWrite)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400 got %d: %s", tc.name, rr.Code, rr.Body.String())
		}
	}
}

func TestCompleteTwiceConflict(t *testing.T) {
	env := newTestEnv()

	view := env.startTask(t, uuid.NewString(), uuid.NewString())

	rr := env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/complete", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/complete", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "already_completed") {
		t.Fatalf("expected already_completed fault, got %s", rr.Body.String())
	}
}

func TestPauseBreakInvalidState(t *testing.T) {
	env := newTestEnv()
	workerID := uuid.NewString()

	body := `{"worker_id":"` + workerID + `","kind":"break"}`
	rr := env.do(t, http.MethodPost, "/v1/activities/start", body, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var view ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	rr = env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/pause", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTransitionOnMissingRecord(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodPost, "/v1/activities/"+uuid.NewString()+"/pause", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestUpdateNotes(t *testing.T) {
	env := newTestEnv()

	view := env.startTask(t, uuid.NewString(), uuid.NewString())

	rr := env.do(t, http.MethodPut, "/v1/activities/"+view.ID+"/notes", `{"notes":"revised"}`, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var updated ActivityView
	if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if updated.Notes != "revised" {
		t.Fatalf("expected revised notes got %q", updated.Notes)
	}
}

func TestCurrentActivityNullWhenIdle(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodGet, "/v1/workers/"+uuid.NewString()+"/activity", "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"activity":null`) {
		t.Fatalf("expected null activity, got %s", rr.Body.String())
	}
}

func TestListActivitiesPagination(t *testing.T) {
	env := newTestEnv()
	workerID := uuid.NewString()

	for i := 0; i < 3; i++ {
		view := env.startTask(t, workerID, uuid.NewString())
		env.clock.now = env.clock.now.Add(time.Hour)
		rr := env.do(t, http.MethodPost, "/v1/activities/"+view.ID+"/complete", "", auth.ScopeTrackingWrite)
		if rr.Code != http.StatusOK {
			t.Fatalf("complete: expected 200 got %d: %s", rr.Code, rr.Body.String())
		}
	}

	rr := env.do(t, http.MethodGet, "/v1/activities?worker_id="+workerID+"&limit=2", "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var page ListActivitiesResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("expected 2 items and a cursor, got %d items cursor=%q", len(page.Items), page.NextCursor)
	}

	rr = env.do(t, http.MethodGet, "/v1/activities?worker_id="+workerID+"&limit=2&cursor="+page.NextCursor, "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &page); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected 1 item on second page, got %d", len(page.Items))
	}
}

func TestListActivitiesRequiresWorkerID(t *testing.T) {
	env := newTestEnv()

	rr := env.do(t, http.MethodGet, "/v1/activities", "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}

func TestScopeEnforcement(t *testing.T) {
	env := newTestEnv()
	body := `{"worker_id":"` + uuid.NewString() + `","kind":"break"}`

	rr := env.do(t, http.MethodPost, "/v1/activities/start", body)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without claims got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/v1/activities/start", body, auth.ScopeTrackingRead)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 with read-only scope got %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/v1/activities/active", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected write scope to imply read, got %d", rr.Code)
	}
}

func TestAttendanceFlow(t *testing.T) {
	env := newTestEnv()
	workerID := uuid.NewString()

	body := `{"worker_id":"` + workerID + `","location":"office"}`
	rr := env.do(t, http.MethodPost, "/v1/attendance/check-in", body, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusCreated {
		t.Fatalf("check-in: expected 201 got %d: %s", rr.Code, rr.Body.String())
	}
	var window AttendanceView
	if err := json.Unmarshal(rr.Body.Bytes(), &window); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	// Double check-in surfaces the open window.
	rr = env.do(t, http.MethodPost, "/v1/attendance/check-in", body, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409 got %d: %s", rr.Code, rr.Body.String())
	}
	var conflict ConflictResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &conflict); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if conflict.Window == nil || conflict.Window.ID != window.ID {
		t.Fatalf("expected open window in body, got %+v", conflict.Window)
	}

	rr = env.do(t, http.MethodGet, "/v1/attendance/stats/today", "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("stats: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var stats AttendanceStatsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.Open != 1 || stats.ByLocation["office"] != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	env.clock.now = env.clock.now.Add(8 * time.Hour)
	rr = env.do(t, http.MethodPost, "/v1/attendance/"+window.ID+"/check-out", "", auth.ScopeTrackingWrite)
	if rr.Code != http.StatusOK {
		t.Fatalf("check-out: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var closed AttendanceView
	if err := json.Unmarshal(rr.Body.Bytes(), &closed); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if closed.CheckOut == nil || closed.WindowMinutes != 480 {
		t.Fatalf("unexpected closed window: %+v", closed)
	}

	rr = env.do(t, http.MethodGet, "/v1/attendance?worker_id="+workerID, "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("history: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	var history ListAttendanceResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &history); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(history.Items) != 1 {
		t.Fatalf("expected 1 history item got %d", len(history.Items))
	}

	rr = env.do(t, http.MethodGet, "/v1/workers/"+workerID+"/attendance", "", auth.ScopeTrackingRead)
	if rr.Code != http.StatusOK {
		t.Fatalf("open window: expected 200 got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), `"window":null`) {
		t.Fatalf("expected null window after check-out, got %s", rr.Body.String())
	}
}

func TestCheckInUnknownLocationRejected(t *testing.T) {
	env := newTestEnv()

	body := `{"worker_id":"` + uuid.NewString() + `","location":"moon"}`
	rr := env.do(t, http.MethodPost, "/v1/attendance/check-in", body, auth.ScopeTrackingWrite)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 got %d: %s", rr.Code, rr.Body.String())
	}
}
