package services

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
)

// AttendanceStore defines the database operations needed to summarise attendance
type AttendanceStore interface {
	GetRehearsal(ctx context.Context, id string) (*model.Rehearsal, error)
	ListAttendance(ctx context.Context, rehearsalID string) ([]model.Attendance, error)
}

// AttendanceSummary is the attendance sheet of one rehearsal with counts per status
type AttendanceSummary struct {
	Rehearsal model.Rehearsal
	Rows      []model.Attendance // sorted by user ID
	Counts    map[model.AttendanceStatus]int
}

// ViewAttendance loads a rehearsal's attendance sheet
func ViewAttendance(
	ctx context.Context,
	database AttendanceStore,
	logger *zap.Logger,
	rehearsalID string,
) (*AttendanceSummary, error) {
	logger.Debug("Starting viewAttendance", zap.String("rehearsal_id", rehearsalID))

	rehearsal, err := database.GetRehearsal(ctx, rehearsalID)
	if err != nil {
		return nil, fmt.Errorf("failed to load rehearsal: %w", err)
	}

	rows, err := database.ListAttendance(ctx, rehearsalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].UserID < rows[j].UserID
	})

	counts := map[model.AttendanceStatus]int{
		model.AttendancePresent:    0,
		model.AttendanceAbsent:     0,
		model.AttendanceExcused:    0,
		model.AttendanceUnrecorded: 0,
	}
	for _, row := range rows {
		counts[row.Status]++
	}

	return &AttendanceSummary{Rehearsal: *rehearsal, Rows: rows, Counts: counts}, nil
}
