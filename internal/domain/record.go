// Package domain holds the activity state machine, the attendance gate, and
// the contracts they need from storage and reference data.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes what an activity record represents.
type Kind string

const (
	KindTask  Kind = "task"
	KindBreak Kind = "break"
)

// Status is the lifecycle state of an activity record.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusOnBreak    Status = "on_break"
	StatusPaused     Status = "paused"
	// StatusInterrupted marks a record the worker walked away from without
	// finishing. Unlike paused it carries an end time and frees the worker
	// to start something else.
	StatusInterrupted Status = "interrupted"
	StatusCompleted   Status = "completed"
)

// Active reports whether the status counts against the one-activity-per-worker
// invariant. Paused records still hold the slot; interrupted and completed do
// not.
func (s Status) Active() bool {
	switch s {
	case StatusInProgress, StatusOnBreak, StatusPaused:
		return true
	}
	return false
}

// Terminal reports whether the record accepts no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// ActiveStatuses is the set of statuses that occupy a worker's activity slot.
var ActiveStatuses = []Status{StatusInProgress, StatusOnBreak, StatusPaused}

// ActivityRecord is a span of a worker performing a task or taking a break.
type ActivityRecord struct {
	ID       uuid.UUID
	WorkerID uuid.UUID
	// TaskID is set only when Kind is KindTask.
	TaskID             *uuid.UUID
	Kind               Kind
	Status             Status
	StartTime          time.Time
	EndTime            *time.Time
	PausedAt           *time.Time
	TotalPausedMinutes int
	Notes              string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Location is where a worker clocked in from.
type Location string

const (
	LocationOffice Location = "office"
	LocationHome   Location = "home"
)

// ValidLocation reports whether the location is one of the known values.
func ValidLocation(l Location) bool {
	return l == LocationOffice || l == LocationHome
}

// AttendanceRecord is a clock-in/clock-out window. A nil CheckOut marks the
// window as open.
type AttendanceRecord struct {
	ID        uuid.UUID
	WorkerID  uuid.UUID
	CheckIn   time.Time
	CheckOut  *time.Time
	Location  Location
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the attendance window is still open.
func (a AttendanceRecord) Open() bool {
	return a.CheckOut == nil
}

// ActivityFilter narrows history queries.
type ActivityFilter struct {
	Status *Status
	Kind   *Kind
	From   *time.Time
	To     *time.Time
}

// Cursor models the pagination token for history listings.
type Cursor struct {
	StartTime time.Time
	ID        uuid.UUID
}
