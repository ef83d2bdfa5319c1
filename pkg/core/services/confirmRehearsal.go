package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// ConfirmParams identifies the rehearsal to confirm and the acting admin
type ConfirmParams struct {
	RehearsalID string `validate:"required"`
	ActorID     string `validate:"required"`
}

// ConfirmResult contains the confirmed rehearsal and its attendance sheet
type ConfirmResult struct {
	Rehearsal  model.Rehearsal
	Attendance []model.Attendance
	// Warnings holds the SOFT member conflicts that did not block confirmation
	Warnings conflict.Report
}

// ConfirmRehearsal moves a proposed rehearsal to confirmed.
//
// Everything happens inside one store transaction: the rehearsal and a fresh
// snapshot are reloaded, the conflict detector is re-run against it, and on
// success the status change and one unrecorded attendance row per resolved
// participant are written together. Any error rolls the whole thing back.
func ConfirmRehearsal(
	ctx context.Context,
	database db.Transactor,
	policy conflict.Policy,
	logger *zap.Logger,
	params ConfirmParams,
) (*ConfirmResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	logger.Debug("Starting confirmRehearsal",
		zap.String("rehearsal_id", params.RehearsalID),
		zap.String("actor_id", params.ActorID))

	detector := conflict.NewDetector(policy)

	var result *ConfirmResult
	err := database.WithinTx(ctx, func(ctx context.Context, tx db.Tx) error {
		// Step 1: Lock and check the rehearsal
		rehearsal, err := tx.GetRehearsal(ctx, params.RehearsalID)
		if err != nil {
			return fmt.Errorf("failed to load rehearsal: %w", err)
		}

		if err := requireAdmin(ctx, tx, rehearsal.GroupID, params.ActorID); err != nil {
			return err
		}

		switch rehearsal.Status {
		case model.RehearsalConfirmed:
			return fmt.Errorf("rehearsal %s is already confirmed: %w", rehearsal.ID, model.ErrInvalidState)
		case model.RehearsalCancelled:
			return fmt.Errorf("rehearsal %s is cancelled: %w", rehearsal.ID, model.ErrInvalidState)
		}

		// Step 2: Re-run conflict detection against a fresh snapshot
		snap, err := tx.LoadSnapshot(ctx, db.SnapshotQuery{
			GroupID:        rehearsal.GroupID,
			VenueID:        rehearsal.VenueID,
			Span:           rehearsal.Window,
			ParticipantIDs: rehearsal.ParticipantIDs,
		})
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}

		participants := model.ResolveParticipants(*rehearsal, snap.Members)
		report := detector.Detect(*rehearsal, participants, snap.Rehearsals, snap.MembershipsOf)
		if report.HasHard() {
			logger.Info("Confirmation blocked by hard conflicts",
				zap.String("rehearsal_id", rehearsal.ID),
				zap.Int("venue_conflicts", len(report.VenueConflicts)),
				zap.Int("group_conflicts", len(report.GroupConflicts)),
				zap.Int("member_conflicts", len(report.HardMemberConflicts())))
			return &conflict.ConflictError{Report: report}
		}

		// Step 3: Persist the new status and the attendance sheet
		if err := tx.SetRehearsalStatus(ctx, rehearsal.ID, model.RehearsalConfirmed); err != nil {
			return fmt.Errorf("failed to update rehearsal status: %w", err)
		}

		rows := make([]model.Attendance, 0, len(participants))
		for _, p := range participants {
			rows = append(rows, model.Attendance{
				RehearsalID: rehearsal.ID,
				UserID:      p.UserID,
				Status:      model.AttendanceUnrecorded,
			})
		}
		if err := tx.InsertAttendance(ctx, rows); err != nil {
			return fmt.Errorf("failed to insert attendance: %w", err)
		}

		rehearsal.Status = model.RehearsalConfirmed
		result = &ConfirmResult{
			Rehearsal:  *rehearsal,
			Attendance: rows,
			Warnings:   report,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to confirm rehearsal %s: %w", params.RehearsalID, err)
	}

	logger.Info("Rehearsal confirmed",
		zap.String("rehearsal_id", result.Rehearsal.ID),
		zap.Int("participants", len(result.Attendance)),
		zap.Int("soft_conflicts", len(result.Warnings.SoftConflicts())))

	return result, nil
}
