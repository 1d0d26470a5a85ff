// Package events defines the payloads published for tracking transitions.
package events

import "time"

// ActivityStarted is emitted when a worker begins a task or a break.
type ActivityStarted struct {
	ActivityID string    `json:"activity_id"`
	WorkerID   string    `json:"worker_id"`
	TaskID     *string   `json:"task_id,omitempty"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
}

// ActivityStateChanged tracks every transition of an activity record
// (paused, resumed, interrupted, completed) for dashboard consumers.
type ActivityStateChanged struct {
	ActivityID string    `json:"activity_id"`
	WorkerID   string    `json:"worker_id"`
	Status     string    `json:"status"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AttendanceCheckedIn is emitted when a worker opens an attendance window.
type AttendanceCheckedIn struct {
	AttendanceID string    `json:"attendance_id"`
	WorkerID     string    `json:"worker_id"`
	Location     string    `json:"location"`
	CheckedInAt  time.Time `json:"checked_in_at"`
}

// AttendanceCheckedOut is emitted when the window closes.
type AttendanceCheckedOut struct {
	AttendanceID  string    `json:"attendance_id"`
	WorkerID      string    `json:"worker_id"`
	CheckedOutAt  time.Time `json:"checked_out_at"`
	WindowMinutes int       `json:"window_minutes"`
}
