package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// CancelParams identifies the rehearsal to cancel and the acting admin
type CancelParams struct {
	RehearsalID string `validate:"required"`
	ActorID     string `validate:"required"`
}

// CancelRehearsal moves a proposed or confirmed rehearsal to cancelled.
// Attendance rows of a confirmed rehearsal are kept.
func CancelRehearsal(
	ctx context.Context,
	database db.Transactor,
	logger *zap.Logger,
	params CancelParams,
) (*model.Rehearsal, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	logger.Debug("Starting cancelRehearsal",
		zap.String("rehearsal_id", params.RehearsalID),
		zap.String("actor_id", params.ActorID))

	var cancelled *model.Rehearsal
	err := database.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		rehearsal, err := tx.GetRehearsal(ctx, params.RehearsalID)
		if err != nil {
			return fmt.Errorf("failed to load rehearsal: %w", err)
		}

		if err := requireAdmin(ctx, tx, rehearsal.GroupID, params.ActorID); err != nil {
			return err
		}

		if rehearsal.Status == model.RehearsalCancelled {
			return fmt.Errorf("rehearsal %s is already cancelled: %w", rehearsal.ID, model.ErrInvalidState)
		}

		if err := tx.SetRehearsalStatus(ctx, rehearsal.ID, model.RehearsalCancelled); err != nil {
			return fmt.Errorf("failed to update rehearsal status: %w", err)
		}

		rehearsal.Status = model.RehearsalCancelled
		cancelled = rehearsal
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel rehearsal %s: %w", params.RehearsalID, err)
	}

	logger.Info("Rehearsal cancelled", zap.String("rehearsal_id", cancelled.ID))

	return cancelled, nil
}
