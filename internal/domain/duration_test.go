package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestElapsedMinutesExcludesPausedTime(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	rec := ActivityRecord{
		Status:             StatusInProgress,
		StartTime:          start,
		TotalPausedMinutes: 10,
	}

	// 11:00 with 10 paused minutes folded in.
	got := ElapsedMinutes(rec, start.Add(time.Hour))
	require.Equal(t, 50, got)
}

func TestElapsedMinutesStopsAtPauseInstant(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	pausedAt := start.Add(30 * time.Minute)
	rec := ActivityRecord{
		Status:    StatusPaused,
		StartTime: start,
		PausedAt:  &pausedAt,
	}

	// The clock keeps running but the measurement does not.
	got := ElapsedMinutes(rec, start.Add(2*time.Hour))
	require.Equal(t, 30, got)
}

func TestElapsedMinutesStopsAtEndTime(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(45 * time.Minute)
	rec := ActivityRecord{
		Status:    StatusInterrupted,
		StartTime: start,
		EndTime:   &end,
	}

	got := ElapsedMinutes(rec, start.Add(3*time.Hour))
	require.Equal(t, 45, got)
}

func TestElapsedMinutesFloorsPartialMinutes(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	rec := ActivityRecord{Status: StatusInProgress, StartTime: start}

	got := ElapsedMinutes(rec, start.Add(10*time.Minute+59*time.Second))
	require.Equal(t, 10, got)
}

func TestElapsedMinutesNeverNegative(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	rec := ActivityRecord{
		Status:             StatusInProgress,
		StartTime:          start,
		TotalPausedMinutes: 90,
	}

	got := ElapsedMinutes(rec, start.Add(time.Hour))
	require.Equal(t, 0, got)
}

func TestFinalDurationMinutes(t *testing.T) {
	start := time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	rec := ActivityRecord{
		Status:             StatusCompleted,
		StartTime:          start,
		EndTime:            &end,
		TotalPausedMinutes: 10,
	}

	got, err := FinalDurationMinutes(rec)
	require.NoError(t, err)
	require.Equal(t, 50, got)
}

func TestFinalDurationRequiresEndTime(t *testing.T) {
	rec := ActivityRecord{
		Status:    StatusInProgress,
		StartTime: time.Date(2026, time.March, 2, 10, 0, 0, 0, time.UTC),
	}

	_, err := FinalDurationMinutes(rec)
	require.True(t, errors.Is(err, ErrInvalidState))
}

func TestWindowMinutes(t *testing.T) {
	checkIn := time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC)

	open := AttendanceRecord{CheckIn: checkIn}
	require.Equal(t, 90, WindowMinutes(open, checkIn.Add(90*time.Minute)))

	checkOut := checkIn.Add(8 * time.Hour)
	closed := AttendanceRecord{CheckIn: checkIn, CheckOut: &checkOut}
	require.Equal(t, 480, WindowMinutes(closed, checkIn.Add(24*time.Hour)))
}
