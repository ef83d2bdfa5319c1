package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bandstand/rehearsal-scheduler/pkg/core/conflict"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/model"
	"github.com/bandstand/rehearsal-scheduler/pkg/core/window"
	"github.com/bandstand/rehearsal-scheduler/pkg/db"
)

// ProposeStore defines the database operations needed to propose a rehearsal
type ProposeStore interface {
	db.SnapshotLoader
	MembershipGetter
	InsertRehearsal(ctx context.Context, rehearsal model.Rehearsal) error
}

// ProposeParams describes a new rehearsal proposal
type ProposeParams struct {
	GroupID string `validate:"required"`
	VenueID string `validate:"required"`
	ActorID string `validate:"required"`
	Window  window.Window
	// ParticipantIDs overrides the group membership when non-empty
	ParticipantIDs []string
}

// ProposeResult contains the stored proposal and the conflicts it currently has
type ProposeResult struct {
	Rehearsal model.Rehearsal
	Warnings  conflict.Report
}

// ProposeRehearsal stores a new proposed rehearsal. A venue or group overlap
// rejects the proposal with a *conflict.ConflictError. Member conflicts are
// returned as warnings and enforced again on confirmation.
func ProposeRehearsal(
	ctx context.Context,
	database ProposeStore,
	policy conflict.Policy,
	logger *zap.Logger,
	params ProposeParams,
) (*ProposeResult, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}
	if err := params.Window.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate rehearsal window: %w", err)
	}

	logger.Debug("Starting proposeRehearsal",
		zap.String("group_id", params.GroupID),
		zap.String("venue_id", params.VenueID),
		zap.Time("start", params.Window.Start),
		zap.Time("end", params.Window.End))

	if err := requireAdmin(ctx, database, params.GroupID, params.ActorID); err != nil {
		return nil, err
	}

	// Loading the snapshot also checks that the group and venue exist
	snap, err := database.LoadSnapshot(ctx, db.SnapshotQuery{
		GroupID:        params.GroupID,
		VenueID:        params.VenueID,
		Span:           params.Window,
		ParticipantIDs: params.ParticipantIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	rehearsal := model.Rehearsal{
		ID:             uuid.NewString(),
		GroupID:        params.GroupID,
		VenueID:        params.VenueID,
		Window:         params.Window,
		Status:         model.RehearsalProposed,
		CreatedBy:      params.ActorID,
		ParticipantIDs: params.ParticipantIDs,
	}

	participants := model.ResolveParticipants(rehearsal, snap.Members)
	report := conflict.NewDetector(policy).Detect(rehearsal, participants, snap.Rehearsals, snap.MembershipsOf)

	// Active rehearsals occupy their venue and group, so these are never stored
	if len(report.VenueConflicts) > 0 || len(report.GroupConflicts) > 0 {
		logger.Info("Proposal rejected by hard conflicts",
			zap.String("group_id", params.GroupID),
			zap.Int("venue_conflicts", len(report.VenueConflicts)),
			zap.Int("group_conflicts", len(report.GroupConflicts)))
		return nil, &conflict.ConflictError{Report: report}
	}

	if err := database.InsertRehearsal(ctx, rehearsal); err != nil {
		return nil, fmt.Errorf("failed to insert rehearsal: %w", err)
	}

	logger.Info("Rehearsal proposed",
		zap.String("rehearsal_id", rehearsal.ID),
		zap.Bool("has_hard_conflicts", report.HasHard()),
		zap.Int("soft_conflicts", len(report.SoftConflicts())))

	return &ProposeResult{Rehearsal: rehearsal, Warnings: report}, nil
}
