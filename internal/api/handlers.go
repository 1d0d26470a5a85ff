// Package api exposes HTTP handlers for the tracking service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"example.com/timeclock/internal/auth"
	"example.com/timeclock/internal/domain"
	"example.com/timeclock/internal/persistence"
)

// Handler coordinates HTTP requests with the tracking and attendance services.
type Handler struct {
	tracking   *domain.Service
	attendance *domain.AttendanceService
}

// NewHandler builds a Handler.
func NewHandler(tracking *domain.Service, attendance *domain.AttendanceService) *Handler {
	return &Handler{tracking: tracking, attendance: attendance}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/activities", h.activities)
	mux.HandleFunc("/v1/activities/", h.activitySubroute)
	mux.HandleFunc("/v1/attendance", h.attendanceHistory)
	mux.HandleFunc("/v1/attendance/", h.attendanceSubroute)
	mux.HandleFunc("/v1/workers/", h.workerSubroute)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) activities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	h.listActivities(w, r)
}

func (h *Handler) activitySubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/activities/")

	switch rest {
	case "start":
		h.requirePost(w, r, h.startActivity)
		return
	case "active":
		h.requireGet(w, r, h.listActive)
		return
	}

	idPart, action, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid activity id")
		return
	}

	switch action {
	case "":
		h.requireGet(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.getActivity(w, r, id)
		})
	case "pause":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.transition(w, r, func() (*domain.ActivityRecord, error) {
				return h.tracking.Pause(r.Context(), id)
			})
		})
	case "resume":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.transition(w, r, func() (*domain.ActivityRecord, error) {
				return h.tracking.Resume(r.Context(), id)
			})
		})
	case "stop":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.transition(w, r, func() (*domain.ActivityRecord, error) {
				return h.tracking.Stop(r.Context(), id)
			})
		})
	case "complete":
		h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.completeActivity(w, r, id)
		})
	case "notes":
		if r.Method != http.MethodPut {
			writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
			return
		}
		h.updateNotes(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) workerSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/workers/")
	idPart, resource, _ := strings.Cut(rest, "/")
	workerID, err := uuid.Parse(idPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid worker id")
		return
	}

	switch resource {
	case "activity":
		h.requireGet(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.currentActivity(w, r, workerID)
		})
	case "attendance":
		h.requireGet(w, r, func(w http.ResponseWriter, r *http.Request) {
			h.openWindow(w, r, workerID)
		})
	default:
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
	}
}

func (h *Handler) attendanceSubroute(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/attendance/")

	switch rest {
	case "check-in":
		h.requirePost(w, r, h.checkIn)
		return
	case "stats/today":
		h.requireGet(w, r, h.attendanceStats)
		return
	}

	idPart, action, _ := strings.Cut(rest, "/")
	id, err := uuid.Parse(idPart)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid attendance id")
		return
	}
	if action != "check-out" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}
	h.requirePost(w, r, func(w http.ResponseWriter, r *http.Request) {
		h.checkOut(w, r, id)
	})
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireScope(w, r, auth.ScopeTrackingWrite) {
		return
	}
	next(w, r)
}

func (h *Handler) requireGet(w http.ResponseWriter, r *http.Request, next http.HandlerFunc) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireReadScope(w, r) {
		return
	}
	next(w, r)
}

func (h *Handler) startActivity(w http.ResponseWriter, r *http.Request) {
	var req StartActivityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	input, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	rec, err := h.tracking.Start(r.Context(), input)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.activityView(*rec))
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func() (*domain.ActivityRecord, error)) {
	rec, err := apply()
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activityView(*rec))
}

func (h *Handler) completeActivity(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req CompleteActivityRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	rec, err := h.tracking.Complete(r.Context(), id, req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activityView(*rec))
}

func (h *Handler) updateNotes(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if !requireScope(w, r, auth.ScopeTrackingWrite) {
		return
	}

	var req UpdateNotesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	rec, err := h.tracking.UpdateNotes(r.Context(), id, req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activityView(*rec))
}

func (h *Handler) getActivity(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	rec, err := h.tracking.Get(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.activityView(*rec))
}

func (h *Handler) currentActivity(w http.ResponseWriter, r *http.Request, workerID uuid.UUID) {
	rec, err := h.tracking.FindActive(r.Context(), workerID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, CurrentActivityResponse{})
		return
	}
	view := h.activityView(*rec)
	writeJSON(w, http.StatusOK, CurrentActivityResponse{Activity: &view})
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	recs, err := h.tracking.ListActive(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, h.activityView(rec))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{Items: items})
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request) {
	if !requireReadScope(w, r) {
		return
	}

	workerID, err := uuid.Parse(r.URL.Query().Get("worker_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing or invalid worker_id parameter")
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	recs, next, err := h.tracking.ListByWorker(r.Context(), workerID, filter, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, h.activityView(rec))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) checkIn(w http.ResponseWriter, r *http.Request) {
	var req CheckInRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	workerID, err := uuid.Parse(req.WorkerID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "worker_id must be a uuid")
		return
	}

	rec, err := h.attendance.CheckIn(r.Context(), workerID, domain.Location(req.Location), req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.attendanceView(*rec))
}

func (h *Handler) checkOut(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	var req CheckOutRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
	}

	rec, err := h.attendance.CheckOut(r.Context(), id, req.Notes)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.attendanceView(*rec))
}

func (h *Handler) openWindow(w http.ResponseWriter, r *http.Request, workerID uuid.UUID) {
	rec, err := h.attendance.FindOpenWindow(r.Context(), workerID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, OpenWindowResponse{})
		return
	}
	view := h.attendanceView(*rec)
	writeJSON(w, http.StatusOK, OpenWindowResponse{Window: &view})
}

func (h *Handler) attendanceHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if !requireReadScope(w, r) {
		return
	}

	workerID, err := uuid.Parse(r.URL.Query().Get("worker_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "missing or invalid worker_id parameter")
		return
	}

	days := 7
	if raw := r.URL.Query().Get("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			days = parsed
		}
	}

	recs, err := h.attendance.History(r.Context(), workerID, days)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]AttendanceView, 0, len(recs))
	for _, rec := range recs {
		items = append(items, h.attendanceView(rec))
	}
	writeJSON(w, http.StatusOK, ListAttendanceResponse{Items: items})
}

func (h *Handler) attendanceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.attendance.OpenWindowStats(r.Context())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := AttendanceStatsResponse{ByLocation: make(map[string]int, len(stats))}
	for location, count := range stats {
		resp.ByLocation[string(location)] = count
		resp.Open += count
	}
	writeJSON(w, http.StatusOK, resp)
}

// StartActivityRequest is the payload for POST /v1/activities/start.
type StartActivityRequest struct {
	WorkerID string  `json:"worker_id"`
	TaskID   *string `json:"task_id,omitempty"`
	Kind     string  `json:"kind"`
	Notes    string  `json:"notes,omitempty"`
}

func (r StartActivityRequest) toInput() (domain.StartInput, error) {
	workerID, err := uuid.Parse(r.WorkerID)
	if err != nil {
		return domain.StartInput{}, errors.New("worker_id must be a uuid")
	}

	kind := domain.Kind(r.Kind)
	if kind != domain.KindTask && kind != domain.KindBreak {
		return domain.StartInput{}, errors.New("kind must be task or break")
	}

	input := domain.StartInput{WorkerID: workerID, Kind: kind, Notes: r.Notes}
	if r.TaskID != nil {
		taskID, err := uuid.Parse(*r.TaskID)
		if err != nil {
			return domain.StartInput{}, errors.New("task_id must be a uuid")
		}
		input.TaskID = &taskID
	}
	if kind == domain.KindTask && input.TaskID == nil {
		return domain.StartInput{}, errors.New("task_id is required when kind is task")
	}
	return input, nil
}

// CompleteActivityRequest optionally replaces the record's notes on completion.
type CompleteActivityRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// UpdateNotesRequest is the payload for PUT /v1/activities/{id}/notes.
type UpdateNotesRequest struct {
	Notes string `json:"notes"`
}

// CheckInRequest is the payload for POST /v1/attendance/check-in.
type CheckInRequest struct {
	WorkerID string `json:"worker_id"`
	Location string `json:"location"`
	Notes    string `json:"notes,omitempty"`
}

// CheckOutRequest optionally replaces the window's notes on check-out.
type CheckOutRequest struct {
	Notes *string `json:"notes,omitempty"`
}

// ActivityView exposes full details about an activity record.
type ActivityView struct {
	ID                   string     `json:"id"`
	WorkerID             string     `json:"worker_id"`
	TaskID               *string    `json:"task_id,omitempty"`
	Kind                 string     `json:"kind"`
	Status               string     `json:"status"`
	StartTime            time.Time  `json:"start_time"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	PausedAt             *time.Time `json:"paused_at,omitempty"`
	TotalPausedMinutes   int        `json:"total_paused_minutes"`
	ElapsedMinutes       int        `json:"elapsed_minutes"`
	FinalDurationMinutes *int       `json:"final_duration_minutes,omitempty"`
	Notes                string     `json:"notes,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// AttendanceView exposes full details about an attendance window.
type AttendanceView struct {
	ID            string     `json:"id"`
	WorkerID      string     `json:"worker_id"`
	CheckIn       time.Time  `json:"check_in"`
	CheckOut      *time.Time `json:"check_out,omitempty"`
	Location      string     `json:"location"`
	WindowMinutes int        `json:"window_minutes"`
	Notes         string     `json:"notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// CurrentActivityResponse wraps a nullable active record.
type CurrentActivityResponse struct {
	Activity *ActivityView `json:"activity"`
}

// OpenWindowResponse wraps a nullable open attendance window.
type OpenWindowResponse struct {
	Window *AttendanceView `json:"window"`
}

// ListActivitiesResponse packages list results.
type ListActivitiesResponse struct {
	Items      []ActivityView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// ListAttendanceResponse packages attendance history results.
type ListAttendanceResponse struct {
	Items []AttendanceView `json:"items"`
}

// AttendanceStatsResponse reports currently-open windows grouped by location.
type AttendanceStatsResponse struct {
	Open       int            `json:"open"`
	ByLocation map[string]int `json:"by_location"`
}

func filterFromQuery(r *http.Request) (domain.ActivityFilter, error) {
	var filter domain.ActivityFilter

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := domain.Status(raw)
		switch status {
		case domain.StatusInProgress, domain.StatusOnBreak, domain.StatusPaused,
			domain.StatusInterrupted, domain.StatusCompleted:
			filter.Status = &status
		default:
			return filter, errors.New("unknown status filter")
		}
	}
	if raw := r.URL.Query().Get("kind"); raw != "" {
		kind := domain.Kind(raw)
		if kind != domain.KindTask && kind != domain.KindBreak {
			return filter, errors.New("unknown kind filter")
		}
		filter.Kind = &kind
	}
	if raw := r.URL.Query().Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("from must be RFC3339")
		}
		filter.From = &from
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filter, errors.New("to must be RFC3339")
		}
		filter.To = &to
	}
	return filter, nil
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return false
	}
	return true
}

func requireReadScope(w http.ResponseWriter, r *http.Request) bool {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if !claims.HasScope(auth.ScopeTrackingRead) && !claims.HasScope(auth.ScopeTrackingWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope tracking:read required")
		return false
	}
	return true
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		view := h.activityView(*conflict.Active)
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Type:     "conflict",
			Detail:   err.Error(),
			Activity: &view,
		})
		return
	}

	var openConflict *domain.AttendanceConflictError
	if errors.As(err, &openConflict) {
		view := h.attendanceView(*openConflict.Open)
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Type:   "conflict",
			Detail: err.Error(),
			Window: &view,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrAlreadyCompleted):
		writeError(w, http.StatusConflict, "already_completed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrInactive):
		writeError(w, http.StatusUnprocessableEntity, "inactive", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusUnprocessableEntity, "invalid_state", err.Error())
	case errors.Is(err, domain.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
	}
}

// ConflictResponse carries the record already holding the contested slot.
type ConflictResponse struct {
	Type     string          `json:"type"`
	Detail   string          `json:"detail"`
	Activity *ActivityView   `json:"activity,omitempty"`
	Window   *AttendanceView `json:"window,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) activityView(rec domain.ActivityRecord) ActivityView {
	view := ActivityView{
		ID:                 rec.ID.String(),
		WorkerID:           rec.WorkerID.String(),
		Kind:               string(rec.Kind),
		Status:             string(rec.Status),
		StartTime:          rec.StartTime,
		EndTime:            rec.EndTime,
		PausedAt:           rec.PausedAt,
		TotalPausedMinutes: rec.TotalPausedMinutes,
		ElapsedMinutes:     domain.ElapsedMinutes(rec, h.tracking.Now()),
		Notes:              rec.Notes,
		CreatedAt:          rec.CreatedAt,
		UpdatedAt:          rec.UpdatedAt,
	}
	if rec.TaskID != nil {
		taskID := rec.TaskID.String()
		view.TaskID = &taskID
	}
	if rec.EndTime != nil {
		if final, err := domain.FinalDurationMinutes(rec); err == nil {
			view.FinalDurationMinutes = &final
		}
	}
	return view
}

func (h *Handler) attendanceView(rec domain.AttendanceRecord) AttendanceView {
	return AttendanceView{
		ID:            rec.ID.String(),
		WorkerID:      rec.WorkerID.String(),
		CheckIn:       rec.CheckIn,
		CheckOut:      rec.CheckOut,
		Location:      string(rec.Location),
		WindowMinutes: domain.WindowMinutes(rec, h.attendance.Now()),
		Notes:         rec.Notes,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}
