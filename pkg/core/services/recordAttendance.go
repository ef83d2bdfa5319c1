package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// RecordAttendanceParams describes one attendance update
type RecordAttendanceParams struct {
	RehearsalID string                 `validate:"required"`
	UserID      string                 `validate:"required"`
	Status      model.AttendanceStatus `validate:"required,oneof=present absent excused unrecorded"`
	ActorID     string                 `validate:"required"`
	// RecordedAt defaults to now
	RecordedAt time.Time
}

// RecordAttendance overwrites exactly one attendance row of a rehearsal
func RecordAttendance(
	ctx context.Context,
	database db.Transactor,
	logger *zap.Logger,
	params RecordAttendanceParams,
) (*model.Attendance, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if params.RecordedAt.IsZero() {
		params.RecordedAt = time.Now().UTC()
	}

	logger.Debug("Starting recordAttendance",
		zap.String("rehearsal_id", params.RehearsalID),
		zap.String("user_id", params.UserID),
		zap.String("status", string(params.Status)))

	var updated *model.Attendance
	err := database.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		rehearsal, err := tx.GetRehearsal(ctx, params.RehearsalID)
		if err != nil {
			return fmt.Errorf("failed to load rehearsal: %w", err)
		}

		if err := requireAdmin(ctx, tx, rehearsal.GroupID, params.ActorID); err != nil {
			return err
		}

		if rehearsal.Status == model.RehearsalCancelled {
			return fmt.Errorf("rehearsal %s is cancelled: %w", rehearsal.ID, model.ErrInvalidState)
		}

		row, err := tx.GetAttendance(ctx, rehearsal.ID, params.UserID)
		if err != nil {
			return fmt.Errorf("failed to load attendance: %w", err)
		}

		recordedAt := params.RecordedAt.UTC()
		row.Status = params.Status
		row.RecordedAt = &recordedAt
		row.RecordedBy = params.ActorID

		if err := tx.UpdateAttendance(ctx, *row); err != nil {
			return fmt.Errorf("failed to update attendance: %w", err)
		}

		updated = row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record attendance: %w", err)
	}

	logger.Info("Attendance recorded",
		zap.String("rehearsal_id", updated.RehearsalID),
		zap.String("user_id", updated.UserID),
		zap.String("status", string(updated.Status)))

	return updated, nil
}
