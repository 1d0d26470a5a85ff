package domain

import "time"

// ElapsedMinutes returns the productive minutes accrued by the record as of
// now, excluding paused time. For a paused record the measurement stops at
// the pause instant; for an ended record it stops at the end time. Whole
// minutes, never negative.
func ElapsedMinutes(rec ActivityRecord, now time.Time) int {
	ref := now
	switch {
	case rec.Status == StatusPaused && rec.PausedAt != nil:
		ref = *rec.PausedAt
	case rec.EndTime != nil:
		ref = *rec.EndTime
	}
	return clampMinutes(ref.Sub(rec.StartTime), rec.TotalPausedMinutes)
}

// FinalDurationMinutes returns the productive minutes between start and end.
// Calling it on a record without an end time is a programming error and is
// signaled as an InvalidState fault rather than a zero duration.
func FinalDurationMinutes(rec ActivityRecord) (int, error) {
	if rec.EndTime == nil {
		return 0, invalidStatef("final duration requires an end time")
	}
	return clampMinutes(rec.EndTime.Sub(rec.StartTime), rec.TotalPausedMinutes), nil
}

// WindowMinutes returns the whole minutes an attendance window has been open,
// or its closed length once checked out. Attendance has no pause concept.
func WindowMinutes(rec AttendanceRecord, now time.Time) int {
	ref := now
	if rec.CheckOut != nil {
		ref = *rec.CheckOut
	}
	return clampMinutes(ref.Sub(rec.CheckIn), 0)
}

// clampMinutes floors the span to whole minutes, subtracts paused minutes,
// and never goes below zero. Negative inputs only arise from corrupted data
// or clock skew; the floor keeps duration math total.
func clampMinutes(span time.Duration, pausedMinutes int) int {
	minutes := int(span.Minutes()) - pausedMinutes
	if minutes < 0 {
		return 0
	}
	return minutes
}
